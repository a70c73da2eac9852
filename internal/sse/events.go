// Package sse implements Server-Sent Events for live mapping updates and auto-map progress.
package sse

import (
	"time"

	"github.com/shopzz/catmap/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventMappingLinked is sent when an external category is linked.
	EventMappingLinked EventType = "mapping.linked"
	// EventMappingUnlinked is sent when a single link is removed.
	EventMappingUnlinked EventType = "mapping.unlinked"
	// EventMappingCleared is sent when every link of a canonical category is removed.
	EventMappingCleared EventType = "mapping.cleared"
	// EventMappingNotSold is sent when a canonical category is marked as not sold.
	EventMappingNotSold EventType = "mapping.not_sold"

	// EventSessionCreated is sent when a session is loaded from the catalogs.
	EventSessionCreated EventType = "session.created"
	// EventSessionDeleted is sent when a session is removed.
	EventSessionDeleted EventType = "session.deleted"
	// EventSessionReset is sent when a session is restored to its baseline.
	EventSessionReset EventType = "session.reset"
	// EventSessionImported is sent after a snapshot import.
	EventSessionImported EventType = "session.imported"

	// EventAutoMapProgress carries matching engine progress.
	EventAutoMapProgress EventType = "automap.progress"
	// EventAutoMapComplete is sent once proposals have been applied.
	EventAutoMapComplete EventType = "automap.complete"
	// EventAutoMapFailed is sent when a job fails or is cancelled.
	EventAutoMapFailed EventType = "automap.failed"

	// EventCatalogChanged is sent when a catalog file changes on disk.
	EventCatalogChanged EventType = "catalog.changed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	// ID is assigned by the Manager when the event is broadcast and is sent
	// as the SSE id field. Heartbeats have no ID.
	ID        uint64    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// SessionID limits delivery to clients watching that session.
	// Empty means broadcast to all.
	SessionID string `json:"session_id,omitempty"`
}

// LinkEventData is the payload of link and unlink events.
type LinkEventData struct {
	CanonicalID domain.CategoryID   `json:"canonical_id"`
	Link        domain.CategoryLink `json:"link"`
}

// MappingEventData is the payload of events that change a whole mapping record.
type MappingEventData struct {
	Mapping *domain.CanonicalMapping `json:"mapping"`
}

// SessionEventData is the payload of session lifecycle events.
type SessionEventData struct {
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"`
}

// AutoMapProgressEventData mirrors the engine's progress message.
type AutoMapProgressEventData struct {
	JobID    string               `json:"job_id"`
	Type     string               `json:"type"`
	Progress domain.MatchProgress `json:"progress"`
}

// AutoMapCompleteEventData is the final result of an auto-map job.
type AutoMapCompleteEventData struct {
	JobID   string              `json:"job_id"`
	Type    string              `json:"type"`
	Result  *domain.MatchResult `json:"result"`
	Applied int                 `json:"applied"`
	Failed  int                 `json:"failed"`
}

// AutoMapFailedEventData reports a failed or cancelled job.
type AutoMapFailedEventData struct {
	JobID   string `json:"job_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CatalogChangedEventData names the catalog file that changed.
type CatalogChangedEventData struct {
	Platform domain.Platform `json:"platform"`
	Path     string          `json:"path"`
}

// HeartbeatEventData is the payload of heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newSessionEvent(t EventType, sessionID string, data any) Event {
	return Event{
		Type:      t,
		Data:      data,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// NewMappingLinkedEvent creates a mapping.linked event.
func NewMappingLinkedEvent(sessionID string, canonicalID domain.CategoryID, link domain.CategoryLink) Event {
	return newSessionEvent(EventMappingLinked, sessionID, LinkEventData{CanonicalID: canonicalID, Link: link})
}

// NewMappingUnlinkedEvent creates a mapping.unlinked event.
func NewMappingUnlinkedEvent(sessionID string, canonicalID domain.CategoryID, link domain.CategoryLink) Event {
	return newSessionEvent(EventMappingUnlinked, sessionID, LinkEventData{CanonicalID: canonicalID, Link: link})
}

// NewMappingClearedEvent creates a mapping.cleared event.
func NewMappingClearedEvent(sessionID string, m *domain.CanonicalMapping) Event {
	return newSessionEvent(EventMappingCleared, sessionID, MappingEventData{Mapping: m})
}

// NewMappingNotSoldEvent creates a mapping.not_sold event.
func NewMappingNotSoldEvent(sessionID string, m *domain.CanonicalMapping) Event {
	return newSessionEvent(EventMappingNotSold, sessionID, MappingEventData{Mapping: m})
}

// NewSessionCreatedEvent creates a session.created event.
func NewSessionCreatedEvent(sessionID, name string) Event {
	return newSessionEvent(EventSessionCreated, sessionID, SessionEventData{Name: name})
}

// NewSessionDeletedEvent creates a session.deleted event.
func NewSessionDeletedEvent(sessionID string) Event {
	return newSessionEvent(EventSessionDeleted, sessionID, SessionEventData{})
}

// NewSessionResetEvent creates a session.reset event.
func NewSessionResetEvent(sessionID string) Event {
	return newSessionEvent(EventSessionReset, sessionID, SessionEventData{})
}

// NewSessionImportedEvent creates a session.imported event.
// Format is "v2" or "legacy".
func NewSessionImportedEvent(sessionID, format string) Event {
	return newSessionEvent(EventSessionImported, sessionID, SessionEventData{Format: format})
}

// NewAutoMapProgressEvent creates an automap.progress event.
func NewAutoMapProgressEvent(sessionID, jobID string, p domain.MatchProgress) Event {
	return newSessionEvent(EventAutoMapProgress, sessionID, AutoMapProgressEventData{
		JobID:    jobID,
		Type:     "progress",
		Progress: p,
	})
}

// NewAutoMapCompleteEvent creates an automap.complete event.
func NewAutoMapCompleteEvent(sessionID, jobID string, result *domain.MatchResult, applied, failed int) Event {
	return newSessionEvent(EventAutoMapComplete, sessionID, AutoMapCompleteEventData{
		JobID:   jobID,
		Type:    "complete",
		Result:  result,
		Applied: applied,
		Failed:  failed,
	})
}

// NewAutoMapFailedEvent creates an automap.failed event.
func NewAutoMapFailedEvent(sessionID, jobID, message string) Event {
	return newSessionEvent(EventAutoMapFailed, sessionID, AutoMapFailedEventData{
		JobID:   jobID,
		Type:    "error",
		Message: message,
	})
}

// NewCatalogChangedEvent creates a catalog.changed event.
func NewCatalogChangedEvent(platform domain.Platform, path string) Event {
	return Event{
		Type:      EventCatalogChanged,
		Data:      CatalogChangedEventData{Platform: platform, Path: path},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
