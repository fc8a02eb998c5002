package service

import (
	"context"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

func (s *Service) ListAuditLogs(ctx context.Context, podID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, podID, from, to, limit)
}

// logAudit never fails the calling operation; a lost audit row is logged.
func (s *Service) logAudit(ctx context.Context, podID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		PodID:         podID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("write audit log failed", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
