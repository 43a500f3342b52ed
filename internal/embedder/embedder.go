// Package embedder generates the 384-dimensional vector embeddings used by
// Hybrid Retrieval's vector leg and by mod/modpack ingestion. Embedding is
// CPU-bound; requests are fanned out over a bounded worker pool so a large
// batch never starves the request scheduler (§5).
package embedder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"golang.org/x/sync/errgroup"
)

// Dimension is the embedding width every Mod/Modpack/query vector shares.
const Dimension = 384

var (
	// ErrEmptyInput is returned when Embed/EmbedBatch is given no text.
	ErrEmptyInput = errors.New("empty or nil input text")
	// ErrEmbeddingFailed wraps failures from the underlying model.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings. Implementations must be safe for
// concurrent use; production code and tests both depend on this interface
// rather than on *FastEmbedEmbedder directly.
type Embedder interface {
	// EmbedQuery embeds a single search query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments embeds a batch of passage texts (mod/modpack
	// descriptions), fanned out across the worker pool.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the width of vectors this Embedder produces.
	Dimension() int
}

// Config configures a FastEmbedEmbedder.
type Config struct {
	// Model is the model name reported in initialization errors. Defaults
	// to BAAI/bge-small-en-v1.5; New always loads fastembed-go's
	// BGESmallENV15 (that model) whatever Model holds.
	Model string
	// CacheDir is where the ONNX model files are cached on disk.
	CacheDir string
	// MaxLength is the maximum input token length. Defaults to 512.
	MaxLength int
	// Workers bounds how many texts are embedded concurrently in
	// EmbedDocuments. Defaults to 4 if unset.
	Workers int
}

// FastEmbedEmbedder generates embeddings with a local ONNX model via
// fastembed-go. One underlying model instance is shared across calls
// behind a worker-pool-bounded semaphore.
type FastEmbedEmbedder struct {
	model     *fastembed.FlagEmbedding
	dimension int
	workers   int
	mu        sync.RWMutex
}

// New constructs a FastEmbedEmbedder, downloading/loading the model files
// under cfg.CacheDir if not already present.
func New(cfg Config) (*FastEmbedEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = "BAAI/bge-small-en-v1.5"
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache", "embeddings")
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.BGESmallENV15,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed model %q: %w", model, err)
	}

	return &FastEmbedEmbedder{
		model:     flagEmbed,
		dimension: Dimension,
		workers:   workers,
	}, nil
}

func (e *FastEmbedEmbedder) Dimension() int { return e.dimension }

// EmbedQuery embeds a single query string, using the model's "query: "
// prefix convention for asymmetric retrieval.
func (e *FastEmbedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	vec, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// EmbedDocuments embeds a batch of passage texts in parallel across the
// worker pool, preserving input order in the returned slice.
func (e *FastEmbedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if text == "" {
				return fmt.Errorf("%w: text at index %d is empty", ErrEmptyInput, i)
			}

			e.mu.RLock()
			vecs, err := e.model.PassageEmbed([]string{text}, 256)
			e.mu.RUnlock()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
			}
			out[i] = vecs[0]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying ONNX runtime resources.
func (e *FastEmbedEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return e.model.Destroy()
	}
	return nil
}
