// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/agentflow/agentflow/pkg/persistence"
	"github.com/agentflow/agentflow/pkg/persistence/file"
	"github.com/agentflow/agentflow/pkg/persistence/postgresql"
	"github.com/agentflow/agentflow/pkg/persistence/redis"
)

// NewPersistence selects a persistence implementation by the URL scheme.
// Unknown schemes fall back to file persistence rooted at the given path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseScheme(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic("failed to initialize postgresql persistence: " + err.Error())
		}

		return p
	case "redis", "rediss":
		p, err := redis.NewPersistence(ctx, databaseURL)
		if err != nil {
			panic("failed to initialize redis persistence: " + err.Error())
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseScheme(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return scheme
}
