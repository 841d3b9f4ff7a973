package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/pkg/logger"
)

type UploadHandler struct {
	cfg config.UploadConfig
	log logger.Logger
}

func NewUploadHandler(cfg config.UploadConfig, log logger.Logger) *UploadHandler {
	return &UploadHandler{cfg: cfg, log: log}
}

// Upload принимает файл и возвращает его durable URL с метаданными.
// Клиент загружает файл до отправки file-сообщения.
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	if fileHeader.Size > h.cfg.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	if err := os.MkdirAll(h.cfg.Dir, 0o755); err != nil {
		h.log.Error("Failed to create upload dir", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	// Имя на диске берется из uuid, оригинальное имя возвращаем в метаданных
	storedName := uuid.New().String() + filepath.Ext(fileHeader.Filename)
	dst := filepath.Join(h.cfg.Dir, storedName)
	if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
		h.log.Error("Failed to store upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	meta := domain.FileMeta{
		URL:  h.cfg.BaseURL + "/" + storedName,
		Name: fileHeader.Filename,
		Mime: fileHeader.Header.Get("Content-Type"),
		Size: fileHeader.Size,
	}

	c.JSON(http.StatusOK, gin.H{"file": meta})
}
