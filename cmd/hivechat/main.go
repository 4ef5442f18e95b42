package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"go-hivechat/internal/infrastructure/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: .env file could not be loaded: %v", err)
	}
	logging.Init()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
