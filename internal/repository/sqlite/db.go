package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Драйвер SQLite (pure Go)
)

// DB оборачивает соединение с backing file памяти.
// Один файл на прогон; внутри — обе коллекции (эпизоды и правила) плюс
// decision trail. MaxOpenConns=1: все записи сериализуются на уровне
// соединения, двум писателям физически не достанется один id.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
    id        INTEGER PRIMARY KEY,
    timestamp REAL    NOT NULL,
    iso_time  TEXT    NOT NULL,
    agent_id  TEXT    NOT NULL,
    task      TEXT    NOT NULL,
    action    TEXT    NOT NULL,
    outcome   TEXT    NOT NULL,
    context   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_agent   ON episodes(agent_id);
CREATE INDEX IF NOT EXISTS idx_episodes_task    ON episodes(task);
CREATE INDEX IF NOT EXISTS idx_episodes_outcome ON episodes(outcome);

CREATE TABLE IF NOT EXISTS rules (
    rule_id    INTEGER PRIMARY KEY,
    content    TEXT    NOT NULL,
    category   TEXT    NOT NULL,
    confidence REAL    NOT NULL,
    source     TEXT    NOT NULL,
    active     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_rules_category ON rules(category);

CREATE TABLE IF NOT EXISTS decision_events (
    id         TEXT PRIMARY KEY,
    mission_id TEXT    NOT NULL,
    stage      INTEGER NOT NULL,
    task       TEXT    NOT NULL,
    sector     TEXT    NOT NULL,
    verdict    TEXT    NOT NULL,
    reason     TEXT    NOT NULL,
    evidence   TEXT,
    created_at TEXT    NOT NULL
);
`

// Open открывает (или создает) backing file и прогоняет миграции.
//
// Семантика отказа — по дизайну стенда: битый/нечитаемый файл НЕ фатален.
// Файл отселяется в карантин (rename с суффиксом .corrupted), пишется warning,
// и прогон продолжается с пустым стором. Терять одну память — приемлемо,
// ронять весь эксперимент — нет.
func Open(path string, logger *zap.Logger) (*DB, error) {
	d, err := open(path, logger)
	if err == nil {
		return d, nil
	}

	// Карантин битого файла и вторая попытка с чистого листа
	quarantine := fmt.Sprintf("%s.corrupted.%d", path, time.Now().Unix())
	logger.Warn("memory store unreadable, recovering as empty store",
		zap.String("path", path),
		zap.String("quarantined_to", quarantine),
		zap.Error(err),
	)
	if renameErr := os.Rename(path, quarantine); renameErr != nil {
		return nil, fmt.Errorf("quarantine corrupted store: %w", renameErr)
	}

	d, err = open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("reopen after quarantine: %w", err)
	}
	return d, nil
}

func open(path string, logger *zap.Logger) (*DB, error) {
	// _busy_timeout на случай конкурирующих читателей;
	// synchronous=FULL — каждый COMMIT долетает до диска до возврата,
	// память обязана пережить рестарт процесса между фазами теста.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{db: sqlDB, logger: logger.Named("sqlite")}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
