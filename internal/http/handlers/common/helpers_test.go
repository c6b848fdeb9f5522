package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

func respond(t *testing.T, err error) (int, dto.ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	RespondAppError(c, err)

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestRespondAppError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperror.ErrEscrowNotFound, http.StatusNotFound},
		{apperror.ErrNotParty, http.StatusForbidden},
		{apperror.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{apperror.New(apperror.ErrCodeInvalidState, "escrow заморожен"), http.StatusConflict},
		{apperror.ErrMissingReason, http.StatusBadRequest},
	}
	for _, tc := range cases {
		status, body := respond(t, tc.err)
		assert.Equal(t, tc.code, status, tc.err.Error())
		assert.Equal(t, string(apperror.CodeOf(tc.err)), body.Code)
	}
}

func TestRespondAppError_MasksInternal(t *testing.T) {
	status, body := respond(t, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "внутренняя ошибка сервера", body.Error)
	assert.NotContains(t, body.Error, "pq")
}

func TestGetPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/x?limit=500&offset=-3", nil)

	limit, offset := GetPagination(c)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 0, offset)
}

func TestParseInt64Param(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "42"}}

	id, err := ParseInt64Param(c, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	_, err = ParseInt64Param(c, "id")
	assert.ErrorIs(t, err, ErrInvalidID)
}
