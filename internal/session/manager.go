package session

import (
	"errors"
	"fmt"
	"sync"

	"screen-recorder/internal/domain"
)

// ErrSessionActive is returned when starting a second session or
// reconfiguring while one is in progress.
var ErrSessionActive = errors.New("session already active")

// ErrNoSourceSelected is returned when starting without a selected screen.
var ErrNoSourceSelected = errors.New("no capture source selected")

// ErrControlDisabled is returned when an action's control is disabled in
// the current state.
var ErrControlDisabled = errors.New("control disabled in current state")

// Manager tracks the workflow state and the single allowed active session.
type Manager struct {
	mu      sync.RWMutex
	state   domain.SessionState
	current *domain.Session
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{state: domain.SessionStateIdle}
}

// Begin installs sess as the active session. It fails while another
// session is active instead of overwriting it.
func (m *Manager) Begin(sess domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return ErrSessionActive
	}
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	m.current = &sess
	return nil
}

// Session returns a copy of the active session, if any.
func (m *Manager) Session() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Session{}, false
	}
	return *m.current, true
}

// Transition validates and applies a state change.
func (m *Manager) Transition(to domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.state {
		return nil
	}
	if !isValidTransition(m.state, to) {
		return fmt.Errorf("invalid transition: %s -> %s", m.state, to)
	}
	if to == domain.SessionStateRecording && m.current == nil {
		return fmt.Errorf("cannot record without an active session")
	}

	m.state = to
	return nil
}

// State returns the current workflow state.
func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Reset discards the session and returns to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.SessionStateIdle
	m.current = nil
}

// IsActive reports whether a session is recording or stopping.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// isValidTransition enforces the allowed workflow edges.
func isValidTransition(from, to domain.SessionState) bool {
	switch from {
	case domain.SessionStateIdle:
		return to == domain.SessionStateSourceSelected
	case domain.SessionStateSourceSelected:
		return to == domain.SessionStateWebcamArmed || to == domain.SessionStateRecording || to == domain.SessionStateIdle
	case domain.SessionStateWebcamArmed:
		return to == domain.SessionStateRecording || to == domain.SessionStateSourceSelected
	case domain.SessionStateRecording:
		return to == domain.SessionStateStopping || to == domain.SessionStateCompleted
	case domain.SessionStateStopping:
		return to == domain.SessionStateCompleted
	case domain.SessionStateCompleted:
		return to == domain.SessionStateIdle
	default:
		return false
	}
}

// controlsFor maps a state to the enabled user actions.
func controlsFor(state domain.SessionState) domain.Controls {
	switch state {
	case domain.SessionStateIdle:
		return domain.Controls{PickSource: true, WebcamToggle: true}
	case domain.SessionStateSourceSelected:
		return domain.Controls{PickSource: true, WebcamToggle: true, Start: true}
	case domain.SessionStateRecording:
		return domain.Controls{Stop: true}
	default:
		return domain.Controls{}
	}
}
