package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

// Config — корневая структура конфигурации всего стенда.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Memory    MemoryConfig          `mapstructure:"memory"`
	Integrity IntegrityConfig       `mapstructure:"integrity"`
	Defense   DefenseConfig         `mapstructure:"defense"`
	Attack    AttackConfig          `mapstructure:"attack"`
	Mission   domain.MissionProfile `mapstructure:"mission"`
	Executor  ExecutorConfig        `mapstructure:"executor"`
	Auth      AuthConfig            `mapstructure:"auth"`
	Logger    LoggerConfig          `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-консоли и экспортера метрик.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MemoryConfig — где лежит backing file памяти.
type MemoryConfig struct {
	Path string `mapstructure:"path"` // файл SQLite; один логический стор на прогон
}

// IntegrityConfig задает ключ подписи записей. Ключ — общесистемная
// конфигурация процесса, он никогда не хранится внутри записи.
// Приоритет: KeyData из ENV > файл KeyPath > Passphrase (растяжка scrypt).
type IntegrityConfig struct {
	KeyPath    string `mapstructure:"key_path"`
	Passphrase string `mapstructure:"passphrase"`
}

// DefenseConfig — режимный флаг эксперимента: проверять ли подписи и
// ревалидировать ли правила перед планированием. Ядро трактует его как
// непрозрачный вход.
type DefenseConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AttackMode выбирает, какой метод AttackHarness дернуть перед прогоном.
type AttackMode string

const (
	AttackNone     AttackMode = "none"
	AttackEpisodic AttackMode = "episodic"
	AttackSemantic AttackMode = "semantic"
)

// AttackConfig — параметры предзапускной инъекции.
type AttackConfig struct {
	Mode         AttackMode `mapstructure:"mode"`
	TargetTask   string     `mapstructure:"target_task"`
	TargetSector string     `mapstructure:"target_sector"`
	Count        int        `mapstructure:"count"`
	RuleContent  string     `mapstructure:"rule_content"`
	RuleCategory string     `mapstructure:"rule_category"`
}

// ExecutorConfig — настройки надежности обертки вокруг исполнителя.
type ExecutorConfig struct {
	RateLimit     float64       `mapstructure:"rate_limit"` // вызовов в секунду
	RateBurst     int           `mapstructure:"rate_burst"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	FailSector    string        `mapstructure:"fail_sector"` // сектор, где SITL-мок честно падает
}

// AuthConfig содержит RSA ключи консоли и учетку оператора.
// У исследовательского стенда ровно один оператор, поэтому вместо таблицы
// пользователей — хэш пароля прямо в конфиге.
type AuthConfig struct {
	PublicKeyPath    string        `mapstructure:"public_key_path"`
	PrivateKeyPath   string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	OperatorUser     string        `mapstructure:"operator_user"`
	OperatorPassHash string        `mapstructure:"operator_pass_hash"` // bcrypt
	PublicKey        []byte
	PrivateKey       []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: DEFENSE_ENABLED=true перекроет defense.enabled
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = LoadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = LoadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("memory.path", "memtrust.db")
	// dev-фраза только для локальных прогонов; в контейнере ключ приходит
	// через INTEGRITY_KEY_DATA
	v.SetDefault("integrity.passphrase", "memtrust-dev-passphrase")
	v.SetDefault("defense.enabled", false)
	v.SetDefault("mission.agents", []string{"uav-1", "uav-2"})
	v.SetDefault("mission.stages", []map[string]any{
		{"task": "scan_sector", "sectors": []string{"A", "B", "C"}},
		{"task": "scan_sector", "sectors": []string{"A", "B", "C"}},
	})
	v.SetDefault("attack.mode", string(AttackNone))
	v.SetDefault("attack.target_task", "scan_sector")
	v.SetDefault("attack.target_sector", "B")
	v.SetDefault("attack.count", 1)
	v.SetDefault("attack.rule_content", "avoid B")
	v.SetDefault("attack.rule_category", "mission_constraints")
	v.SetDefault("executor.rate_limit", 50.0)
	v.SetDefault("executor.rate_burst", 10)
	v.SetDefault("executor.call_timeout", 10*time.Second)
	v.SetDefault("executor.retry_attempts", 3)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// LoadKeyResource — универсальный хелпер: секрет напрямую из ENV или файлом.
func LoadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
