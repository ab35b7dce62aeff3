// Package main prints a bearer token for an owner, for local testing
// against the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/auth"
	"github.com/phrazzld/scribe-api/internal/config"
)

func main() {
	owner := flag.String("owner", "", "owner id (a random id is used when empty)")
	lifetime := flag.Duration("lifetime", 0, "token lifetime (defaults to the configured lifetime)")
	configPath := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	if err := run(os.Stdout, *configPath, *owner, *lifetime); err != nil {
		fmt.Fprintf(os.Stderr, "token-generator: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, configPath, owner string, lifetime time.Duration) error {
	authCfg, err := loadAuthConfig(configPath)
	if err != nil {
		return err
	}

	ownerID := uuid.New()
	if owner != "" {
		ownerID, err = uuid.Parse(owner)
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}
	}

	var opts []auth.Option
	if lifetime > 0 {
		opts = append(opts, auth.WithLifetime(lifetime))
	}
	tokens, err := auth.NewTokenService(authCfg, opts...)
	if err != nil {
		return err
	}

	token, err := tokens.GenerateToken(context.Background(), ownerID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "owner: %s\ntoken: %s\n", ownerID, token)
	return err
}

// loadAuthConfig reads only the auth section so a token can be minted
// without database or broker settings. SCRIBE_AUTH_JWT_SECRET alone is
// enough.
func loadAuthConfig(path string) (config.AuthConfig, error) {
	cfg, err := config.LoadAuth(path)
	if err != nil {
		return config.AuthConfig{}, fmt.Errorf("failed to load auth configuration: %w", err)
	}
	return cfg, nil
}
