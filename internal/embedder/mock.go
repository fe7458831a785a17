package embedder

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"

	"github.com/wisprlabs/voiceid/internal/voicedb"
)

type mockEmbedder struct {
	dim int
}

// NewMockEmbedder returns a model-free embedder that derives a deterministic
// pseudo-random vector from the audio bytes: the same clip always embeds to
// the same vector, and distinct clips almost surely differ.
func NewMockEmbedder(dim int) Embedder {
	return &mockEmbedder{dim: dim}
}

func (m *mockEmbedder) Dimension() int {
	return m.dim
}

func (m *mockEmbedder) Embed(_ context.Context, audio []byte) (voicedb.Vector, error) {
	if len(audio) == 0 {
		return nil, errors.New("empty audio payload")
	}

	h := fnv.New64a()
	_, _ = h.Write(audio)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make(voicedb.Vector, m.dim)
	for i := range vec {
		vec[i] = rng.Float64()
	}
	return vec, nil
}
