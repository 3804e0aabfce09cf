package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decision records what the edge did with a crawler request.
type Decision string

// Supported decisions.
const (
	DecisionIntercepted Decision = "intercepted"
	DecisionPassThrough Decision = "pass_through"
)

// Event captures one crawler request handled by the edge boundary.
type Event struct {
	// ID uniquely identifies the event (UUIDv7, time ordered).
	ID uuid.UUID
	// TS is the UTC time the request entered the boundary.
	TS time.Time
	// Decision is the final outcome for the request.
	Decision Decision
	// Handler names the component that produced the decision; empty when no
	// handler ran.
	Handler string
	// Reason is the machine-readable cause of a pass-through, or the outcome
	// label of an interception.
	Reason string
	// Path and URL describe the inbound request.
	Path string
	URL  string
	// Agent is the matched signature token and AgentKind its family.
	Agent     string
	AgentKind string
	// Engine names the renderer used by the prerender gateway, if any.
	Engine string
	// UpstreamStatus is the rendering service or data store status, 0 when no
	// response arrived.
	UpstreamStatus int
	// Bytes is the size of the intercepted response body.
	Bytes int64
	// Dur is the time spent inside the boundary.
	Dur time.Duration
	// Note carries low-volume error text.
	Note string
	// ContentType and Body hold the intercepted document when body capture
	// is enabled; they are never published.
	ContentType string
	Body        []byte
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("event id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Decision {
	case DecisionIntercepted:
		if e.Handler == "" {
			return errors.New("intercepted event requires handler")
		}
	case DecisionPassThrough:
	default:
		return fmt.Errorf("unknown decision %q", e.Decision)
	}
	if e.Path == "" {
		return errors.New("path is required")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// NewEventID returns a time-ordered event identifier, falling back to a
// random UUID if the clock sequence cannot be read.
func NewEventID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
