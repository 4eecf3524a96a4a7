package audit

/*
Файл trail.go реализует Decision Trail — асинхронный сборщик решений
супервизора и валидатора с пакетной записью в хранилище.

Ключевые особенности архитектуры:
- Non-blocking Logging: запись решения не тормозит планирование; события
  уходят в буферизованный канал, Hot Path супервизора не ждет диск.
- Batching & Efficiency: накопление событий в памяти и пакетная вставка
  по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер вычитывает остатки и делает Final Flush — след решений не теряется
  при завершении прогона.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняется decision trail.
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []DecisionEvent) error
}

type Recorder interface {
	Record(event DecisionEvent)
}

type Trail struct {
	ch     chan DecisionEvent
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита от записи после остановки: Record после Stop — это баг вызывающего,
	// но паника на закрытом канале недопустима. RWMutex гарантирует, что
	// close(ch) не случится между проверкой флага и отправкой в канал.
	mu     sync.RWMutex
	closed bool
}

func NewTrail(repo StorageInterface, logger *zap.Logger) *Trail {
	return &Trail{
		ch:     make(chan DecisionEvent, 4096),
		repo:   repo,
		logger: logger.With(zap.String("mod", "decision-trail")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Под эксклюзивным локом ставим флаг и закрываем канал: текущие Record
	// держат RLock и успеют отправиться до close, новые — увидят флаг.
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.logger.Info("stopping decision trail: closing channel and flushing buffer...")
	close(t.ch)
	t.mu.Unlock()

	// 2. Drain Pattern: воркер вычитывает остатки и делает Final Flush.
	t.wg.Wait()
	t.logger.Info("decision trail stopped gracefully")
}

func (t *Trail) Record(event DecisionEvent) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.logger.Warn("decision event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: переполненный буфер не блокирует планирование,
	// но потеря события громко фиксируется в логе.
	select {
	case t.ch <- event:
	default:
		t.logger.Error("decision_trail_overflow",
			zap.String("mission_id", event.MissionID),
			zap.String("sector", event.Sector),
			zap.String("verdict", event.Verdict),
		)
	}
}

// Pending возвращает текущую заполненность буфера (для метрик backpressure).
func (t *Trail) Pending() int {
	return len(t.ch)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]DecisionEvent, 0, 100)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст прогона к моменту Final Flush может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("decision trail flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				flush() // Финальный сброс
				t.logger.Info("decision trail worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
