package main

import (
	"log"

	"github.com/platewise/platewise-api/internal/config"
	"github.com/platewise/platewise-api/internal/infrastructure/server"
)

func main() {
	log.Println("Starting Platewise API...")

	// Load Configuration
	cfg := config.Load()

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
