// Command token-generator issues access tokens for the Relay API using the
// server's configured JWT secret. It is meant for local development and
// operational scripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/service/auth"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token-generator", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to embed in the token (required)")
	admin := fs.Bool("admin", false, "grant the admin role")
	lifetime := fs.Int("lifetime", 0, "token lifetime in minutes (defaults to auth.token_lifetime_minutes)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("-user is required")
	}

	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	authCfg := cfg.Auth
	if *lifetime > 0 {
		authCfg.TokenLifetimeMinutes = *lifetime
	}

	jwtService, err := auth.NewJWTService(authCfg)
	if err != nil {
		return err
	}

	role := ""
	if *admin {
		role = auth.RoleAdmin
	}

	token, err := jwtService.GenerateToken(context.Background(), *userID, role)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
