// Command mint_admin_token prints a bearer token for the learning API's
// admin routes, signed with the configured AUTH_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/auth"
)

func main() {
	subject := flag.String("subject", "operator", "token subject (who is acting)")
	ttl := flag.Duration("ttl", 0, "token lifetime (0 = configured access token duration)")
	viewer := flag.Bool("viewer", false, "mint a non-admin token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token, err := mint(cfg.AuthConfig, *subject, !*viewer, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(cfg config.AuthConfig, subject string, isAdmin bool, ttl time.Duration) (string, error) {
	m := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration)
	return m.GenerateAccessToken(subject, isAdmin, ttl)
}
