package modstore

import (
	"context"
	"fmt"
)

// BackendConfig selects and configures which Backend New wires up.
type BackendConfig struct {
	// QdrantHost/QdrantPort select the primary backend when QdrantHost is
	// non-empty. Otherwise the embedded chromem-go backend is used.
	QdrantHost string
	QdrantPort int
	// QdrantAPIKey authenticates against a managed Qdrant Cloud instance;
	// empty is valid for a self-hosted instance with no auth configured.
	QdrantAPIKey string

	// ChromemPath is the data directory for the embedded fallback backend.
	ChromemPath string
}

// NewBackend builds the configured Backend: Qdrant when a host is given,
// otherwise the embedded chromem-go backend — the same primary/fallback
// shape as the teacher's vectorstore.NewStore factory.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	if cfg.QdrantHost != "" {
		backend, err := NewQdrantBackend(ctx, QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant backend: %w", err)
		}
		return backend, nil
	}
	return NewChromemBackend(cfg.ChromemPath)
}
