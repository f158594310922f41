package domain

import "time"

// SourceKind distinguishes whole screens from single windows.
type SourceKind string

const (
	SourceKindScreen SourceKind = "screen"
	SourceKindWindow SourceKind = "window"
)

// CaptureSource is one OS-enumerable screen or window.
type CaptureSource struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind SourceKind `json:"kind"`
}

// Modality names one of the two independently recorded streams.
type Modality string

const (
	ModalityScreen Modality = "screen"
	ModalityWebcam Modality = "webcam"
)

// FileName returns the fixed per-modality output file name.
func (m Modality) FileName() string {
	return string(m) + ".webm"
}

// SessionState tracks the recording workflow phase.
type SessionState string

const (
	SessionStateIdle           SessionState = "idle"
	SessionStateSourceSelected SessionState = "source_selected"
	SessionStateWebcamArmed    SessionState = "webcam_armed"
	SessionStateRecording      SessionState = "recording"
	SessionStateStopping       SessionState = "stopping"
	SessionStateCompleted      SessionState = "completed"
)

// StreamStatus tracks one modality's record-and-accumulate lifecycle.
type StreamStatus string

const (
	StreamStatusIdle      StreamStatus = "idle"
	StreamStatusCapturing StreamStatus = "capturing"
	StreamStatusRecording StreamStatus = "recording"
	StreamStatusStopping  StreamStatus = "stopping"
	StreamStatusFlushed   StreamStatus = "flushed"
)

// Session identifies one user-initiated recording attempt.
type Session struct {
	ID             string    `json:"id"`
	StartTime      time.Time `json:"startTime"`
	ScreenSelected bool      `json:"screenSelected"`
	WebcamEnabled  bool      `json:"webcamEnabled"`
}

// Controls reports which user actions are currently enabled.
type Controls struct {
	PickSource   bool `json:"pickSource"`
	WebcamToggle bool `json:"webcamToggle"`
	Start        bool `json:"start"`
	Stop         bool `json:"stop"`
}

// Previews reports which preview panes have a live stream bound.
type Previews struct {
	Screen bool `json:"screen"`
	Webcam bool `json:"webcam"`
}

// ViewState is the read-only projection consumed by UI shells.
type ViewState struct {
	State          SessionState   `json:"state"`
	Controls       Controls       `json:"controls"`
	WebcamEnabled  bool           `json:"webcamEnabled"`
	SelectedSource *CaptureSource `json:"selectedSource,omitempty"`
	SourceLabel    string         `json:"sourceLabel"`
	Previews       Previews       `json:"previews"`
	Timer          string         `json:"timer"`
	SessionID      string         `json:"sessionId,omitempty"`
	LastSavedDir   string         `json:"lastSavedDir,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir        string `json:"outputDir"`
	FFmpegPath       string `json:"ffmpegPath"`
	FrameRate        int    `json:"frameRate"`
	VideoBitrate     string `json:"videoBitrate"`
	WebcamDevice     string `json:"webcamDevice"`
	MicrophoneDevice string `json:"microphoneDevice"`
	WebcamEnabled    bool   `json:"webcamEnabled"`
}
