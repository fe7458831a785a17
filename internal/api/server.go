package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/identity"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

// Server exposes enrollment and identification over HTTP.
type Server struct {
	svc       *identity.Service
	maxUpload int64
	logger    *slog.Logger
}

func NewServer(svc *identity.Service, cfg config.HTTPConfig, logger *slog.Logger) *Server {
	return &Server{
		svc:       svc,
		maxUpload: cfg.MaxUploadBytes,
		logger:    logger.With(slog.String("component", "api")),
	}
}

// Register attaches the API routes to the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/enroll", s.handleEnroll)
	mux.HandleFunc("/identify", s.handleIdentify)
	mux.HandleFunc("/speakers", s.handleSpeakers)
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type identifyResponse struct {
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
}

type speakersResponse struct {
	Speakers []voicedb.SpeakerCount `json:"speakers"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "error", Message: "method not allowed"})
		return
	}
	requestID := uuid.NewString()

	name, audio, err := s.readUpload(r, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	if err := s.svc.Enroll(r.Context(), requestID, name, audio); err != nil {
		s.logger.Warn("enrollment failed",
			slog.String("request_id", requestID),
			slog.String("speaker", name),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: fmt.Sprintf("Enrolled %s", name)})
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "error", Message: "method not allowed"})
		return
	}
	requestID := uuid.NewString()

	_, audio, err := s.readUpload(r, false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	result := s.svc.Identify(r.Context(), requestID, "", audio)
	writeJSON(w, http.StatusOK, identifyResponse{Speaker: result.Speaker, Confidence: result.Confidence})
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "error", Message: "method not allowed"})
		return
	}
	counts := s.svc.Speakers()
	if counts == nil {
		counts = []voicedb.SpeakerCount{}
	}
	writeJSON(w, http.StatusOK, speakersResponse{Speakers: counts})
}

// readUpload extracts the audio file (and, for enrollment, the speaker name)
// from a multipart form.
func (s *Server) readUpload(r *http.Request, wantName bool) (string, []byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return "", nil, fmt.Errorf("parse multipart form: %w", err)
	}

	var name string
	if wantName {
		name = strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			return "", nil, errors.New("missing form field: name")
		}
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("missing form field: file")
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	if len(audio) == 0 {
		return "", nil, errors.New("uploaded file is empty")
	}
	return name, audio, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
