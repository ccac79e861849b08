//go:build ignore

// Provision a user and print their API key without going through the admin
// API. Usage: go run scripts/utilities/create_user.go "Display Name"
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kolwatch/kolwatch/internal/auth"
	"github.com/kolwatch/kolwatch/internal/database"
	"github.com/kolwatch/kolwatch/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: create_user.go <display name>")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.URL = dbURL

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	users := database.NewPostgresUserRepository(db)
	keys := database.NewPostgresAPIKeyRepository(db)

	user := &models.User{DisplayName: os.Args[1]}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		log.Fatalf("failed to generate api key: %v", err)
	}
	key := &models.APIKey{UserID: user.ID, KeyHash: auth.HashAPIKey(plaintext)}
	if err := keys.Create(ctx, key); err != nil {
		log.Fatalf("failed to store api key: %v", err)
	}

	fmt.Printf("user id: %s\napi key: %s\n", user.ID, plaintext)
	fmt.Println("store the key now; only its hash is kept")
}
