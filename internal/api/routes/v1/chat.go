package v1

import (
	"context"
	"log"

	"chatsync-backend/internal/cache"
	"chatsync-backend/internal/config"
	"chatsync-backend/internal/handlers"
	"chatsync-backend/internal/libraries"
	llmHandlers "chatsync-backend/internal/llm_handlers"
	"chatsync-backend/internal/repo"
	"chatsync-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

var hub *libraries.Hub

func init() {
	// Initialize the Hub once
	hub = libraries.NewHub()
	// Start the Hub in a goroutine
	go hub.Run()
}

// ChatRoutes is the group of routes for the chat API.
func registerChat(r fiber.Router) {
	chatRepo := repo.NewChatRepository(config.DB)
	messageRepo := repo.NewMessageRepository(config.DB)
	readCache := cache.NewReadCache(config.Redis, cache.DefaultTTL)

	titleClient, err := llmHandlers.NewTitleClient(context.Background())
	if err != nil {
		// titles degrade to the placeholder; everything else still works
		log.Println("title client unavailable:", err)
		titleClient = nil
	}
	titleService := service.NewTitleService(chatRepo, readCache, titleClient)

	chatService := service.NewChatService(chatRepo, messageRepo, readCache, titleService)
	chatHandler := handlers.NewChatHandler(chatService)
	streamHandler := handlers.NewStreamHandler(chatService)
	processor := handlers.NewSessionProcessor(chatService)

	r.Get("/chats", chatHandler.GetChats)
	r.Post("/chats", chatHandler.CreateChat)
	r.Get("/chats/:chatId/messages", chatHandler.GetMessages)
	r.Delete("/chats/:chatId", chatHandler.DeleteChat)
	r.Post("/chats/:chatId/stream", streamHandler.StreamChat)

	// Use the Hub-based WebSocket handler
	r.Get("/ws", libraries.WebSocketHandler(hub, processor, libraries.GetClients()))
}
