package main

import (
	"flag"
	"fmt"
	"log"

	"telegram-voice-assistant/internal/config"
	httpapi "telegram-voice-assistant/internal/infra/http"
)

// Prints a bearer token for the admin /api routes, signed with admin.jwt_secret.
func main() {
	subject := flag.String("subject", "admin", "token subject")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.Admin.JWTSecret == "" {
		log.Fatal("admin.jwt_secret is empty; the /api routes are open and need no token")
	}

	token, err := httpapi.NewAuthenticator(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(*subject)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	log.Printf("token valid for %s", cfg.Admin.TokenTTL)
	fmt.Println(token)
}
