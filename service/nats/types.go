package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/bukeqi/service/oracle"
)

// OracleEvent is the wire form of an oracle event.
// It is published to the subject "oracle.{kind}" in JetStream.
type OracleEvent struct {
	oracle.Event

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// SubjectFor returns the subject an event of the given kind is published to.
func SubjectFor(kind oracle.EventKind) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, kind)
}

// FromOracleEvent wraps an event for publishing.
func FromOracleEvent(ev oracle.Event) *OracleEvent {
	return &OracleEvent{
		Event:       ev,
		PublishedAt: time.Now().UTC(),
	}
}
