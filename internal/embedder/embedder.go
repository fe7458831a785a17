package embedder

import (
	"context"
	"fmt"

	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

// Embedder converts raw audio into a fixed-dimension voice embedding.
type Embedder interface {
	Embed(ctx context.Context, audio []byte) (voicedb.Vector, error)
	Dimension() int
}

// New selects the embedder implementation from config.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	case "exec":
		return NewExecEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder mode %q", cfg.Mode)
	}
}
