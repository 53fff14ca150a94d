package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// AuditService writes the audit trail. Recording is fire-and-forget: it must
// never slow down or fail the operation being audited, so failures are logged
// and swallowed.
type AuditService struct {
	repo    auditRepository
	logger  *zap.Logger
	timeout time.Duration
}

// NewAuditService constructs the audit service.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Record persists an audit entry asynchronously. Old and new values are
// serialized best-effort; a value that cannot marshal is recorded as absent.
func (s *AuditService) Record(action, resource string, resourceID *string, oldValues, newValues interface{}) {
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		OldValues:  marshalAuditValue(oldValues),
		NewValues:  marshalAuditValue(newValues),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.logger.Warn("audit write failed",
				zap.String("action", action), zap.String("resource", resource), zap.Error(err))
		}
	}()
}

// Trail returns the audit history for one resource.
func (s *AuditService) Trail(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	return s.repo.ListByResource(ctx, resource, resourceID, limit)
}

func marshalAuditValue(v interface{}) []byte {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}
