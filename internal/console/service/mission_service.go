package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/audit"
	"github.com/xela07ax/uav-memtrust/internal/supervisor"
)

var (
	ErrMissionNotFound = errors.New("mission not found")
	ErrMissionRunning  = errors.New("mission still running")
)

// MissionRunner — супервизор с точки зрения консоли.
type MissionRunner interface {
	RunMission(ctx context.Context, missionID string) (*supervisor.Report, error)
}

// EventSource — чтение decision trail по миссии (audit репозиторий).
type EventSource interface {
	SelectByMission(ctx context.Context, missionID string, from int) ([]audit.DecisionEvent, error)
}

// missionRecord — состояние одного прогона в памяти консоли.
type missionRecord struct {
	report *supervisor.Report
	err    error
	done   bool
}

// MissionService запускает прогоны миссии и отдает оператору их ход и итог.
// Прогон долгий, поэтому Start асинхронный: оператор опрашивает events и
// summary по mission_id — та же модель, что в polling-дашбордах.
type MissionService struct {
	runner MissionRunner
	events EventSource
	logger *zap.Logger

	mu       sync.Mutex
	missions map[string]*missionRecord
	lastDone string // id последнего успешно завершенного прогона
}

func NewMissionService(runner MissionRunner, events EventSource, logger *zap.Logger) *MissionService {
	return &MissionService{
		runner:   runner,
		events:   events,
		logger:   logger.Named("mission-service"),
		missions: make(map[string]*missionRecord),
	}
}

// Start запускает прогон в фоне и сразу возвращает mission_id.
// Жизнь прогона не привязана к HTTP-запросу, поэтому Background.
func (s *MissionService) Start() string {
	missionID := uuid.NewString()

	s.mu.Lock()
	s.missions[missionID] = &missionRecord{}
	s.mu.Unlock()

	go func() {
		report, err := s.runner.RunMission(context.Background(), missionID)
		if err != nil {
			s.logger.Error("mission failed", zap.String("mission_id", missionID), zap.Error(err))
		}

		s.mu.Lock()
		rec := s.missions[missionID]
		rec.report = report
		rec.err = err
		rec.done = true
		if err == nil {
			s.lastDone = missionID
		}
		s.mu.Unlock()
	}()

	return missionID
}

// Events — хвост decision trail миссии начиная с порядкового номера from.
func (s *MissionService) Events(ctx context.Context, missionID string, from int) ([]audit.DecisionEvent, error) {
	s.mu.Lock()
	_, known := s.missions[missionID]
	s.mu.Unlock()
	if !known {
		return nil, ErrMissionNotFound
	}
	return s.events.SelectByMission(ctx, missionID, from)
}

// Summary — итоговый отчет. Пока прогон идет — ErrMissionRunning.
func (s *MissionService) Summary(missionID string) (*supervisor.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.missions[missionID]
	if !ok {
		return nil, ErrMissionNotFound
	}
	if !rec.done {
		return nil, ErrMissionRunning
	}
	if rec.err != nil {
		return nil, rec.err
	}
	return rec.report, nil
}

// LastStats — агрегаты последнего завершенного прогона для дашборда.
func (s *MissionService) LastStats() (*supervisor.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.missions[s.lastDone]
	if !ok || rec.report == nil {
		return nil, false
	}
	return rec.report, true
}
