package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

// Reconcile records counted cash against the pod's non-cancelled cash sales
// for the day. A pod reconciles each date once.
func (s *Service) Reconcile(ctx context.Context, podID string, req domain.ReconciliationRequest) (*domain.Reconciliation, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator)
	if err != nil {
		return nil, err
	}
	if req.ActualCash.IsNegative() {
		return nil, fmt.Errorf("%w: actual_cash must be >= 0", store.ErrValidation)
	}
	podID = s.podOrDefault(podID)
	from, to, err := s.dayWindow(req.Date)
	if err != nil {
		return nil, err
	}

	expected, err := s.repo.ExpectedCash(ctx, podID, from, to)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.CreateReconciliation(ctx, domain.Reconciliation{
		ID:           xid.New("recon"),
		PodID:        podID,
		Date:         from.Format(time.DateOnly),
		ExpectedCash: expected,
		ActualCash:   req.ActualCash,
		Variance:     req.ActualCash.Sub(expected),
		OperatorID:   actor.Username,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, podID, "pod.reconcile", "reconciliation", record.ID,
		fmt.Sprintf("date=%s expected=%s actual=%s variance=%s", record.Date,
			record.ExpectedCash.StringFixed(2), record.ActualCash.StringFixed(2), record.Variance.StringFixed(2)))
	if !record.Variance.IsZero() {
		s.logger.Warn("cash variance recorded", "pod_id", podID, "date", record.Date, "variance", record.Variance.StringFixed(2))
	}
	return record, nil
}

func (s *Service) GetReconciliation(ctx context.Context, podID string, date string) (*domain.Reconciliation, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	from, _, err := s.dayWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.GetReconciliation(ctx, s.podOrDefault(podID), from.Format(time.DateOnly))
}
