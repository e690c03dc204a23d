package v1

import (
	"chatsync-backend/internal/handlers"
	"chatsync-backend/internal/libraries"

	"github.com/gofiber/fiber/v2"
)

func registerUploads(r fiber.Router) {
	uploadHandler := handlers.NewUploadHandler(libraries.GetClients())

	r.Post("/uploads/target", uploadHandler.CreateUploadTarget)
}
