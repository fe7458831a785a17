package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/wisprlabs/voiceid/internal/bus"
	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/identity"
	"github.com/wisprlabs/voiceid/internal/protocol"
)

// Service consumes PCM audio frames from the bus and runs identification on
// each completed session, publishing the result back on the bus. It lets edge
// devices use the matcher without speaking HTTP.
type Service struct {
	cfg      config.IngestConfig
	bus      *bus.Client
	identity *identity.Service
	logger   *slog.Logger
	sessions map[string][]byte
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *nats.Subscription
	wg       sync.WaitGroup
	ready    bool
}

func NewService(parent context.Context, cfg config.IngestConfig, busClient *bus.Client, identitySvc *identity.Service, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		identity: identitySvc,
		logger:   logger.With(slog.String("component", "ingest")),
		sessions: make(map[string][]byte),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.sessions[frame.SessionID] = append(s.sessions[frame.SessionID], frame.PCM...)
	var pcm []byte
	if frame.Final {
		pcm = s.sessions[frame.SessionID]
		delete(s.sessions, frame.SessionID)
	}
	s.mu.Unlock()

	if !frame.Final {
		return
	}

	sampleRate := frame.SampleRate
	if sampleRate == 0 {
		sampleRate = s.cfg.SampleRate
	}
	channels := frame.Channels
	if channels == 0 {
		channels = s.cfg.Channels
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
		defer cancel()
		s.identifySession(ctx, frame.SessionID, pcm, sampleRate, channels)
	}()
}

func (s *Service) identifySession(ctx context.Context, sessionID string, pcm []byte, sampleRate, channels int) {
	wavBytes, err := pcmToWav(pcm, sampleRate, channels)
	if err != nil {
		s.logger.Warn("failed to frame session audio",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}

	// Identify publishes the result on the bus and records the audit row.
	s.identity.Identify(ctx, uuid.NewString(), sessionID, wavBytes)
}

// pcmToWav wraps little-endian 16-bit PCM into a WAV container so the
// embedder sees the same format HTTP uploads arrive in.
func pcmToWav(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty pcm payload")
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}

	file, err := os.CreateTemp(os.TempDir(), "voiceid_ingest_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind wav: %w", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return out.Bytes(), nil
}
