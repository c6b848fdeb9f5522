package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/storage"
)

// EvidenceSaver сохраняет загруженный файл доказательства.
type EvidenceSaver interface {
	Save(ctx context.Context, userID uuid.UUID, originalName string, r io.Reader) (*storage.StoredFile, error)
}

// EvidenceHandler принимает файлы доказательств для этапов и споров.
// Возвращённый URL затем передаётся в complete/evidence.
type EvidenceHandler struct {
	storage EvidenceSaver
}

func NewEvidenceHandler(storage EvidenceSaver) *EvidenceHandler {
	return &EvidenceHandler{storage: storage}
}

// Upload обрабатывает POST /evidence (multipart, поле file).
func (h *EvidenceHandler) Upload(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "поле file обязательно")
		return
	}
	if file.Size == 0 {
		common.RespondBadRequest(c, "файл не может быть пустым")
		return
	}

	src, err := file.Open()
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	defer src.Close()

	stored, err := h.storage.Save(c.Request.Context(), actor.ID, file.Filename, src)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":      actor.ID,
		"path":         stored.Path,
		"content_type": stored.ContentType,
		"size":         stored.Size,
	}).Info("доказательство загружено")

	c.JSON(http.StatusCreated, dto.UploadResponse{
		URL:          stored.URL,
		OriginalName: stored.OriginalName,
		ContentType:  stored.ContentType,
		Size:         stored.Size,
	})
}
