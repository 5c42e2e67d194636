package session

// Error definitions
var (
	ErrDeviceAccess = NewSessionError("audio capture device unavailable")
	ErrChannel      = NewSessionError("voice service connection failed")
	ErrNotRecording = NewSessionError("no active session")
)

// SessionError represents errors specific to session lifecycle operations
type SessionError struct {
	message string
}

func NewSessionError(message string) *SessionError {
	return &SessionError{message: message}
}

func (e *SessionError) Error() string {
	return e.message
}
