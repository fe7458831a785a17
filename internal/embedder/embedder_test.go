package embedder

import (
	"context"
	"testing"

	"github.com/wisprlabs/voiceid/internal/config"
)

func TestNewSelectsMode(t *testing.T) {
	emb, err := New(config.EmbedderConfig{Mode: "mock", Dimension: 64})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Dimension() != 64 {
		t.Fatalf("expected dimension 64, got %d", emb.Dimension())
	}

	if _, err := New(config.EmbedderConfig{Mode: "onnx", Dimension: 64}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestMockEmbedderIsDeterministic(t *testing.T) {
	emb := NewMockEmbedder(128)
	audio := []byte("the same clip")

	first, err := emb.Embed(context.Background(), audio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := emb.Embed(context.Background(), audio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != 128 {
		t.Fatalf("expected 128-dim vector, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same audio produced different vectors at index %d", i)
		}
	}
}

func TestMockEmbedderDistinguishesClips(t *testing.T) {
	emb := NewMockEmbedder(128)

	a, err := emb.Embed(context.Background(), []byte("clip a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := emb.Embed(context.Background(), []byte("clip b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct clips produced identical vectors")
	}
}

func TestMockEmbedderRejectsEmptyAudio(t *testing.T) {
	emb := NewMockEmbedder(16)
	if _, err := emb.Embed(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestExecEmbedderRejectsBadCommand(t *testing.T) {
	if _, err := NewExecEmbedder(config.EmbedderConfig{Mode: "exec", Command: "", Dimension: 16}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
