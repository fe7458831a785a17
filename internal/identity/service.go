package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wisprlabs/voiceid/internal/audit"
	"github.com/wisprlabs/voiceid/internal/bus"
	"github.com/wisprlabs/voiceid/internal/embedder"
	"github.com/wisprlabs/voiceid/internal/matcher"
	"github.com/wisprlabs/voiceid/internal/protocol"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

// Sentinel speaker labels used on the wire. Identification never fails
// outwardly; these labels stand in for the no-match and failure cases.
const (
	SpeakerUnknown = "unknown"
	SpeakerError   = "error"
)

// Outcome discriminates identification results so callers cannot confuse a
// swallowed failure with a genuine no-match.
type Outcome string

const (
	OutcomeMatch   Outcome = "match"
	OutcomeUnknown Outcome = "unknown"
	OutcomeError   Outcome = "error"
)

// IdentifyResult is the explicit result type for identification requests.
// Speaker is the matched identity or one of the sentinel labels.
type IdentifyResult struct {
	Outcome    Outcome
	Speaker    string
	Confidence float64
}

// Service orchestrates enrollment and identification over the voice store.
type Service struct {
	embedder embedder.Embedder
	store    *voicedb.Store
	matcher  *matcher.Matcher
	audit    *audit.Store
	bus      *bus.Client
	logger   *slog.Logger

	enrollCounter   metric.Int64Counter
	identifyCounter metric.Int64Counter
}

func NewService(emb embedder.Embedder, store *voicedb.Store, m *matcher.Matcher, auditStore *audit.Store, busClient *bus.Client, logger *slog.Logger) *Service {
	meter := otel.Meter("github.com/wisprlabs/voiceid/identity")
	enrollCounter, err := meter.Int64Counter("voiceid.enrollments",
		metric.WithDescription("Enrollment requests by outcome"))
	if err != nil {
		logger.Warn("failed to create enrollment counter", slog.String("error", err.Error()))
	}
	identifyCounter, err := meter.Int64Counter("voiceid.identifications",
		metric.WithDescription("Identification requests by outcome"))
	if err != nil {
		logger.Warn("failed to create identification counter", slog.String("error", err.Error()))
	}

	return &Service{
		embedder:        emb,
		store:           store,
		matcher:         m,
		audit:           auditStore,
		bus:             busClient,
		logger:          logger.With(slog.String("component", "identity")),
		enrollCounter:   enrollCounter,
		identifyCounter: identifyCounter,
	}
}

// Enroll embeds the audio and appends the vector under the speaker,
// persisting the database before returning. Provider failures, dimension
// mismatches, and persistence failures surface as errors.
func (s *Service) Enroll(ctx context.Context, requestID, speaker string, audio []byte) error {
	vec, err := s.embedder.Embed(ctx, audio)
	if err != nil {
		s.record(ctx, audit.Record{RequestID: requestID, Operation: "enroll", Speaker: speaker, Outcome: "error"})
		s.count(ctx, s.enrollCounter, "error")
		return fmt.Errorf("extract embedding: %w", err)
	}

	if err := s.store.Enroll(speaker, vec); err != nil {
		s.record(ctx, audit.Record{RequestID: requestID, Operation: "enroll", Speaker: speaker, Outcome: "error"})
		s.count(ctx, s.enrollCounter, "error")
		return err
	}

	s.record(ctx, audit.Record{RequestID: requestID, Operation: "enroll", Speaker: speaker, Outcome: "ok"})
	s.count(ctx, s.enrollCounter, "ok")
	s.publishEnrollment(requestID, speaker)

	s.logger.Info("speaker enrolled",
		slog.String("request_id", requestID),
		slog.String("speaker", speaker))
	return nil
}

// Identify embeds the audio and scans the store for the best match. It never
// returns an error: provider or similarity failures degrade to the error
// sentinel with a zero score.
func (s *Service) Identify(ctx context.Context, requestID, sessionID string, audio []byte) IdentifyResult {
	result := s.identify(ctx, audio)

	s.record(ctx, audit.Record{
		RequestID: requestID,
		SessionID: sessionID,
		Operation: "identify",
		Speaker:   result.Speaker,
		Score:     result.Confidence,
		Outcome:   string(result.Outcome),
	})
	s.count(ctx, s.identifyCounter, string(result.Outcome))
	s.publishIdentification(requestID, sessionID, result)

	s.logger.Info("identification completed",
		slog.String("request_id", requestID),
		slog.String("speaker", result.Speaker),
		slog.Float64("confidence", result.Confidence),
		slog.String("outcome", string(result.Outcome)))
	return result
}

func (s *Service) identify(ctx context.Context, audio []byte) IdentifyResult {
	query, err := s.embedder.Embed(ctx, audio)
	if err != nil {
		s.logger.Warn("embedding extraction failed", slog.String("error", err.Error()))
		return IdentifyResult{Outcome: OutcomeError, Speaker: SpeakerError, Confidence: 0}
	}

	match, err := s.matcher.Identify(query, s.store.Snapshot())
	if err != nil {
		s.logger.Warn("similarity scan failed", slog.String("error", err.Error()))
		return IdentifyResult{Outcome: OutcomeError, Speaker: SpeakerError, Confidence: 0}
	}

	if !match.Matched {
		return IdentifyResult{Outcome: OutcomeUnknown, Speaker: SpeakerUnknown, Confidence: match.Score}
	}
	return IdentifyResult{Outcome: OutcomeMatch, Speaker: match.Speaker, Confidence: match.Score}
}

// Speakers lists enrolled speakers with sample counts.
func (s *Service) Speakers() []voicedb.SpeakerCount {
	return s.store.Counts()
}

func (s *Service) record(ctx context.Context, rec audit.Record) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.Warn("failed to append audit record", slog.String("error", err.Error()))
	}
}

func (s *Service) count(ctx context.Context, counter metric.Int64Counter, outcome string) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) publishEnrollment(requestID, speaker string) {
	if s.bus == nil {
		return
	}
	evt := protocol.Enrollment{
		RequestID: requestID,
		Speaker:   speaker,
		Samples:   len(s.store.Snapshot().Vectors(speaker)),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("failed to marshal enrollment event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeakerEnrolled, data); err != nil {
		s.logger.Warn("failed to publish enrollment event", slog.String("error", err.Error()))
	}
}

func (s *Service) publishIdentification(requestID, sessionID string, result IdentifyResult) {
	if s.bus == nil {
		return
	}
	evt := protocol.Identification{
		RequestID:  requestID,
		SessionID:  sessionID,
		Speaker:    result.Speaker,
		Confidence: result.Confidence,
		Timestamp:  time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("failed to marshal identification event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeakerIdentified, data); err != nil {
		s.logger.Warn("failed to publish identification event", slog.String("error", err.Error()))
	}
}
