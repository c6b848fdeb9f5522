package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/middleware"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/storage"
)

type mockEvidenceSaver struct {
	mock.Mock
}

func (m *mockEvidenceSaver) Save(ctx context.Context, userID uuid.UUID, originalName string, r io.Reader) (*storage.StoredFile, error) {
	args := m.Called(ctx, userID, originalName, r)
	if f := args.Get(0); f != nil {
		return f.(*storage.StoredFile), args.Error(1)
	}
	return nil, args.Error(1)
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/evidence", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func evidenceRouter(h *EvidenceHandler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/evidence", func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.ContextUserIDKey, userID)
		}
	}, h.Upload)
	return r
}

func TestEvidenceHandler_Upload(t *testing.T) {
	userID := uuid.New()
	saver := new(mockEvidenceSaver)
	saver.On("Save", mock.Anything, userID, "act.pdf", mock.Anything).Return(&storage.StoredFile{
		Path:         userID.String() + "/1_ab.pdf",
		URL:          "/files/evidence/" + userID.String() + "/1_ab.pdf",
		OriginalName: "act.pdf",
		ContentType:  "application/pdf",
		Size:         9,
	}, nil)

	w := httptest.NewRecorder()
	evidenceRouter(NewEvidenceHandler(saver), userID).ServeHTTP(w, uploadRequest(t, "act.pdf", []byte("%PDF-1.4\n")))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp dto.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "application/pdf", resp.ContentType)
	assert.Contains(t, resp.URL, userID.String())
	saver.AssertExpectations(t)
}

func TestEvidenceHandler_RejectedType(t *testing.T) {
	userID := uuid.New()
	saver := new(mockEvidenceSaver)
	saver.On("Save", mock.Anything, userID, "run.sh", mock.Anything).
		Return(nil, apperror.New(apperror.ErrCodeValidation, "неподдерживаемый тип файла доказательства"))

	w := httptest.NewRecorder()
	evidenceRouter(NewEvidenceHandler(saver), userID).ServeHTTP(w, uploadRequest(t, "run.sh", []byte("#!/bin/sh\n")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvidenceHandler_Unauthorized(t *testing.T) {
	w := httptest.NewRecorder()
	evidenceRouter(NewEvidenceHandler(nil), uuid.Nil).ServeHTTP(w, uploadRequest(t, "a.png", []byte{0x89, 'P', 'N', 'G'}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEvidenceHandler_MissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/evidence", nil)
	w := httptest.NewRecorder()
	evidenceRouter(NewEvidenceHandler(nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
