package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type jobQueue interface {
	TryEnqueue(job jobs.Job) error
}

// AuditService writes audit entries off the request path.
type AuditService struct {
	store  auditStore
	queue  jobQueue
	logger *zap.Logger
}

// NewAuditService constructs AuditService. A nil queue writes synchronously.
func NewAuditService(store auditStore, queue jobQueue, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{store: store, queue: queue, logger: logger}
}

// Create schedules the entry. When the queue is saturated the entry is
// written inline instead of being dropped.
func (s *AuditService) Create(ctx context.Context, entry *models.AuditLog) error {
	if s.queue == nil {
		return s.store.Create(ctx, entry)
	}
	err := s.queue.TryEnqueue(jobs.Job{Type: auditJobType, Payload: entry})
	if err == nil {
		return nil
	}
	s.logger.Warn("audit queue unavailable, writing inline", zap.Error(err))
	return s.store.Create(ctx, entry)
}

// Handle is the queue handler persisting queued entries.
func (s *AuditService) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.store.Create(ctx, entry)
}
