package service

import (
	"context"

	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/memory"
)

// StatsService собирает единый срез для дашборда: состояние памяти,
// режим защиты и агрегаты последнего прогона.
type StatsService struct {
	memory   *memory.Interface
	missions *MissionService
	defense  bool
}

func NewStatsService(mem *memory.Interface, missions *MissionService, defense bool) *StatsService {
	return &StatsService{
		memory:   mem,
		missions: missions,
		defense:  defense,
	}
}

func (s *StatsService) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	memStats, err := s.memory.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.DashboardStats{
		DefenseEnabled: s.defense,
		Memory:         memStats,
	}
	if report, ok := s.missions.LastStats(); ok {
		stats.Mission = report.Stats
	}
	return stats, nil
}
