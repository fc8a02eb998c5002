package service

import (
	"context"
	"strings"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

// DailyReport aggregates a pod's orders over one UTC day. An empty podID
// reports across all pods.
func (s *Service) DailyReport(ctx context.Context, podID string, date string) (domain.DailyReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return domain.DailyReport{}, err
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return domain.DailyReport{}, err
	}
	return s.repo.GetDailyReport(ctx, strings.TrimSpace(podID), from, to)
}
