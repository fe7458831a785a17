package protocol

import "time"

// AudioFrame represents PCM audio data streamed from edge devices.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Enrollment announces a newly enrolled voice sample.
type Enrollment struct {
	RequestID string    `json:"request_id"`
	Speaker   string    `json:"speaker"`
	Samples   int       `json:"samples"`
	Timestamp time.Time `json:"timestamp"`
}

// Identification carries the outcome of a speaker lookup. Speaker is the
// matched identity or one of the sentinel labels "unknown" and "error".
type Identification struct {
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Speaker    string    `json:"speaker"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectSpeakerEnrolled   = "voice.speaker.enrolled"
	SubjectSpeakerIdentified = "voice.speaker.identified"
)
