package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

type execEmbedder struct {
	cmd []string
	cfg config.EmbedderConfig
	mu  sync.Mutex
}

type execResult struct {
	Embedding []float64 `json:"embedding"`
}

// NewExecEmbedder wraps an external speaker-encoder command. The audio is
// written to a temp file, passed via --audio, and the command must print
// {"embedding": [...]} on stdout.
func NewExecEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse embedder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("embedder command is empty")
	}
	return &execEmbedder{cmd: args, cfg: cfg}, nil
}

func (e *execEmbedder) Dimension() int {
	return e.cfg.Dimension
}

func (e *execEmbedder) Embed(ctx context.Context, audio []byte) (voicedb.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	file, err := os.CreateTemp(os.TempDir(), "voiceid_embed_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("flush audio: %w", err)
	}

	args := append([]string{}, e.cmd...)
	base := args[0]
	cmdArgs := append(args[1:], "--audio", file.Name())

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("embedder command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode embedder response: %w", err)
	}
	if len(resp.Embedding) != e.cfg.Dimension {
		return nil, fmt.Errorf("embedder returned %d-dim vector, expected %d",
			len(resp.Embedding), e.cfg.Dimension)
	}
	return voicedb.Vector(resp.Embedding), nil
}
