package core

import (
	"github.com/google/uuid"
)

// NewSessionID mints a fresh, opaque session identifier. The original
// ken prototype (original_source/src/session.rs) used uuid::Uuid::new_v4;
// this keeps that shape rather than the short alphanumeric GUIDs the
// chat side of the teacher codebase favors, since agents and triggers
// pass session ids through JSON verbatim and gain nothing from brevity.
func NewSessionID() string {
	return uuid.New().String()
}

// ShortID returns a display-friendly prefix of an id, long enough to
// disambiguate in a single workflow tree without printing the full uuid.
func ShortID(id string) string {
	const displayLen = 8
	if len(id) <= displayLen {
		return id
	}
	return id[:displayLen]
}
