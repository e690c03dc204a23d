package handlers

import (
	"log"

	"chatsync-backend/internal/uploads"

	"github.com/gofiber/fiber/v2"
)

type UploadHandler struct {
	targets uploads.TargetProvider
}

func NewUploadHandler(targets uploads.TargetProvider) *UploadHandler {
	return &UploadHandler{targets: targets}
}

// function to mint a single-use presigned destination for a direct upload.
// The file body never passes through this server.
func (h *UploadHandler) CreateUploadTarget(c *fiber.Ctx) error {
	var dto struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	}
	if err := c.BodyParser(&dto); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if dto.FileName == "" || dto.ContentType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "fileName and contentType are required",
		})
	}

	target, err := h.targets.GetUploadTarget(c.Context(), dto.FileName, dto.ContentType)
	if err != nil {
		log.Println(err, "Error creating upload target")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create upload target",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uploadUrl": target.UploadURL,
		"publicUrl": target.PublicURL,
	})
}
