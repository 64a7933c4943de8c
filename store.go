package rip_stream

import "time"

type SessionStatus string

const (
	SessionStatusAcquiring  SessionStatus = "acquiring"
	SessionStatusAssembling SessionStatus = "assembling"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusFailed     SessionStatus = "failed"
)

// SessionRecord is the persisted summary of a session, keyed by OutputName.
type SessionRecord struct {
	ID           string
	URLTemplate  string
	FirstIndex   int
	LastIndex    int
	OutputName   string
	Segments     int
	Termination  string
	Status       SessionStatus
	Error        string
	ArtifactPath string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store persists session records between runs.
type Store interface {
	// GetSession returns (nil, nil) if there is no record for name.
	GetSession(name string) (*SessionRecord, error)
	PutSession(record *SessionRecord) error
	ListSessions() ([]SessionRecord, error)
	DeleteSession(name string) error
}

// NilStore remembers nothing.
type NilStore struct{}

func (NilStore) GetSession(_ string) (*SessionRecord, error) {
	return nil, nil
}

func (NilStore) PutSession(_ *SessionRecord) error {
	return nil
}

func (NilStore) ListSessions() ([]SessionRecord, error) {
	return nil, nil
}

func (NilStore) DeleteSession(_ string) error {
	return nil
}
