package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/alsamah-store/storefront-edge/internal/audit"
)

// PubSubSink publishes every edge event as a JSON message so SEO analytics can
// follow crawler traffic. Document bodies are never published.
type PubSubSink struct {
	topic *pubsub.Topic
}

// eventMessage is the published wire shape.
type eventMessage struct {
	ID             string    `json:"id"`
	TS             time.Time `json:"ts"`
	Decision       string    `json:"decision"`
	Handler        string    `json:"handler,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Path           string    `json:"path"`
	URL            string    `json:"url,omitempty"`
	Agent          string    `json:"agent,omitempty"`
	AgentKind      string    `json:"agent_kind,omitempty"`
	Engine         string    `json:"engine,omitempty"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Bytes          int64     `json:"bytes,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Note           string    `json:"note,omitempty"`
}

// NewPubSubSink publishes to topic.
func NewPubSubSink(topic *pubsub.Topic) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &PubSubSink{topic: topic}, nil
}

// Consume publishes the batch and waits for every result.
func (s *PubSubSink) Consume(ctx context.Context, batch []audit.Event) error {
	results := make([]*pubsub.PublishResult, 0, len(batch))
	var errs []error
	for _, evt := range batch {
		data, err := json.Marshal(toMessage(evt))
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal event %s: %w", evt.ID, err))
			continue
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"decision":   string(evt.Decision),
				"handler":    evt.Handler,
				"agent_kind": evt.AgentKind,
				"status":     strconv.Itoa(evt.UpstreamStatus),
			},
		}))
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, fmt.Errorf("publish edge event: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes outstanding messages and stops the topic's publish goroutines.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}

func toMessage(evt audit.Event) eventMessage {
	return eventMessage{
		ID:             evt.ID.String(),
		TS:             evt.TS.UTC(),
		Decision:       string(evt.Decision),
		Handler:        evt.Handler,
		Reason:         evt.Reason,
		Path:           evt.Path,
		URL:            evt.URL,
		Agent:          evt.Agent,
		AgentKind:      evt.AgentKind,
		Engine:         evt.Engine,
		UpstreamStatus: evt.UpstreamStatus,
		Bytes:          evt.Bytes,
		DurationMS:     evt.Dur.Milliseconds(),
		Note:           evt.Note,
	}
}
