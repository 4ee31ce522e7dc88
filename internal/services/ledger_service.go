package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"cuadre/internal/core"
)

type (
	// RecordWriter stores a row locally and returns its id.
	RecordWriter interface {
		CreateRecord(ctx context.Context, row core.LedgerRow) (int64, error)
	}

	// SyncPublisher queues a mirror request for a stored row.
	SyncPublisher interface {
		PublishRecordSync(ctx context.Context, id, version int64) error
	}
)

// LedgerService orchestrates row writes across SQLite and AMQP.
type LedgerService struct {
	storage   RecordWriter
	publisher SyncPublisher
	closers   []func() error
}

// NewLedgerService accepts a nil publisher; rows are then mirrored only by the
// worker's pending sweep.
func NewLedgerService(storage RecordWriter, publisher SyncPublisher) *LedgerService {
	return &LedgerService{storage: storage, publisher: publisher}
}

// CreateRecord saves the row locally and publishes a sync message.
// A publish failure is logged; the row is already durable.
func (s *LedgerService) CreateRecord(ctx context.Context, row core.LedgerRow) (string, error) {
	if s.storage == nil {
		return "", errors.New("ledger storage not configured")
	}
	id, err := s.storage.CreateRecord(ctx, row)
	if err != nil {
		return "", fmt.Errorf("save reconciliation: %w", err)
	}

	if err := s.publishSyncMessage(ctx, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", id, "record_id", row.ID, "error", err)
	}

	return strconv.FormatInt(id, 10), nil
}

func (s *LedgerService) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}
	return s.publisher.PublishRecordSync(ctx, id, version)
}

// OnClose registers a resource released by Close, in reverse order.
func (s *LedgerService) OnClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases registered resources and joins their errors.
func (s *LedgerService) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
