package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alsamah-store/storefront-edge/internal/archive"
	"github.com/alsamah-store/storefront-edge/internal/audit"
)

// ArchiveSink stores the documents served to crawlers so operators can see
// exactly what a search engine or social network received.
type ArchiveSink struct {
	store  archive.BlobStore
	logger *zap.Logger
}

// NewArchiveSink writes intercepted bodies to store.
func NewArchiveSink(store archive.BlobStore, logger *zap.Logger) (*ArchiveSink, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{store: store, logger: logger}, nil
}

// Consume archives each intercepted event that carries a body. Events without
// a body, and pass-through events, are skipped.
func (s *ArchiveSink) Consume(ctx context.Context, batch []audit.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Decision != audit.DecisionIntercepted || len(evt.Body) == 0 {
			continue
		}
		target := evt.URL
		if target == "" {
			target = evt.Path
		}
		contentType := evt.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		key := archive.SnapshotKey(target, evt.TS)
		uri, err := s.store.PutObject(ctx, key, contentType, bytes.NewReader(evt.Body))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", key, err))
			continue
		}
		s.logger.Debug("archived crawler snapshot",
			zap.String("uri", uri),
			zap.String("handler", evt.Handler),
			zap.String("path", evt.Path),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
