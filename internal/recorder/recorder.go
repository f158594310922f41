package recorder

import "errors"

// State is the recorder lifecycle as observed by the session.
type State string

const (
	StateInactive  State = "inactive"
	StateRecording State = "recording"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("recorder already started")

// ErrUnexpectedExit is passed to OnStop when the encoder ends without a
// stop request.
var ErrUnexpectedExit = errors.New("recorder ended unexpectedly")

// Handler receives recorder output. Callbacks are never invoked from inside
// Start or Stop; they arrive from one goroutine per recorder, in order,
// and OnStop is always the last call.
type Handler struct {
	OnData func(chunk []byte)
	OnStop func(err error)
}

// Recorder encodes one capture stream into chunks.
type Recorder interface {
	Start() error
	// Stop requests a graceful end. It does not block on the flush and is
	// a no-op once the recorder is inactive or already stopping.
	Stop() error
	State() State
}
