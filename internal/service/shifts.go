package service

import (
	"context"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (*domain.Shift, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator)
	if err != nil {
		return nil, err
	}
	shift, err := s.repo.CreateShift(ctx, domain.Shift{
		ID:         xid.New("shift"),
		OperatorID: actor.Username,
		PodID:      s.podOrDefault(req.PodID),
		StartedAt:  s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, shift.PodID, "shift.start", "shift", shift.ID, "operator="+actor.Username)
	s.logger.Info("shift started", "shift_id", shift.ID, "operator", actor.Username, "pod_id", shift.PodID)
	return shift, nil
}

// EndShift closes the caller's open shift once every handover item is ticked.
func (s *Service) EndShift(ctx context.Context, req domain.ShiftEndRequest) (*domain.Shift, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator)
	if err != nil {
		return nil, err
	}
	shift, err := s.repo.CloseActiveShift(ctx, actor.Username, req.Checklist, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, shift.PodID, "shift.end", "shift", shift.ID, "operator="+actor.Username)
	s.logger.Info("shift ended", "shift_id", shift.ID, "operator", actor.Username)
	return shift, nil
}

func (s *Service) ActiveShift(ctx context.Context) (*domain.Shift, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator)
	if err != nil {
		return nil, err
	}
	return s.repo.GetActiveShift(ctx, actor.Username)
}
