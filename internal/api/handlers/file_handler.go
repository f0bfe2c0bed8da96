package handlers

import (
	"errors"

	"grts/pkg/blobstore"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// FileHandler serves objects of the local blob store behind signed URLs.
type FileHandler struct {
	store  *blobstore.Local
	logger *zap.Logger
}

func NewFileHandler(store *blobstore.Local, logger *zap.Logger) *FileHandler {
	return &FileHandler{store: store, logger: logger}
}

func (h *FileHandler) Serve(c *fiber.Ctx) error {
	path, err := h.store.Verify(c.Params("*"), c.Query("expires"), c.Query("sig"))
	switch {
	case err == nil:
		return c.SendFile(path)
	case errors.Is(err, blobstore.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		h.logger.Debug("Rejected file request", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Invalid or expired link"})
	}
}
