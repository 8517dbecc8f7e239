package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/cli/busterctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("BUSTER_CLI_TIMEOUT")), 10*time.Second)
	options := busterctl.Options{
		BaseURL:        envOr("BUSTER_API_URL", "http://localhost:8080"),
		APIKey:         strings.TrimSpace(os.Getenv("BUSTER_API_KEY")),
		OrganizationID: strings.TrimSpace(os.Getenv("BUSTER_ORGANIZATION_ID")),
		UserID:         strings.TrimSpace(os.Getenv("BUSTER_USER_ID")),
		Timeout:        timeout,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}

	code := busterctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid BUSTER_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
