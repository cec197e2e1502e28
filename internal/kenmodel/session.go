package kenmodel

import "time"

// DoneWhen is the structured completion criteria delivered verbatim to
// an agent in the composed prompt's Definition-of-Done section.
type DoneWhen struct {
	Description string   `json:"description" yaml:"description"`
	Criteria    []string `json:"criteria" yaml:"criteria"`
	Verify      string   `json:"verify,omitempty" yaml:"verify,omitempty"`
}

// Session is the central entity of spec §3.
type Session struct {
	ID             string
	KenPath        string
	Task           string
	DoneWhen       *DoneWhen
	Status         Status
	ParentID       string // empty for roots
	Trigger        *Trigger
	Checkpoint     string // empty means unset
	Result         string // empty means unset
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastHeartbeat  time.Time
}

// HasParent reports whether this session was spawned by another.
func (s Session) HasParent() bool { return s.ParentID != "" }

// HasCheckpoint reports whether an agent has ever saved a checkpoint.
func (s Session) HasCheckpoint() bool { return s.Checkpoint != "" }

// HasResult reports whether a terminal result has been recorded.
func (s Session) HasResult() bool { return s.Result != "" }

// NewSession builds a pending root or child session. Callers assign ID.
func NewSession(id, kenPath, task string, doneWhen *DoneWhen, parentID string, now time.Time) Session {
	return Session{
		ID:        id,
		KenPath:   kenPath,
		Task:      task,
		DoneWhen:  doneWhen,
		Status:    StatusPending,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
