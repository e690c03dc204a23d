package main

import (
	"log"

	"chatsync-backend/internal/api"
	"chatsync-backend/internal/api/routes"
	"chatsync-backend/internal/config"
	"chatsync-backend/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	logger.Init()

	// Connect to database
	if err := config.ConnectDB(); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Run migrations
	if err := config.MigrateAllModels(false); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Connect to redis for the read cache
	if err := config.ConnectRedis(); err != nil {
		log.Fatal("Failed to connect to redis:", err)
	}

	// Create and configure Fiber app
	app := api.NewServer()

	// Register routes
	routes.Register(app)

	// Start server
	if err := api.StartServer(app); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
