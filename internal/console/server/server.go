package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/console/handler"
	"github.com/xela07ax/uav-memtrust/internal/infra"
	"github.com/xela07ax/uav-memtrust/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding OperatorValidator в AuthService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler    *handler.AuthHandler      // /auth/token
	memoryHandler  *handler.MemoryHandler    // /v1/memory, /v1/rules
	attackHandler  *handler.AttackHandler    // /v1/attack
	missionHandler *handler.MissionHandler   // /v1/mission
	dashHandler    *handler.DashboardHandler // /api/v1/dashboard
}

// NewConsoleServer инициализирует сервер консоли оператора со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	authValidator auth.TokenValidator,
	authH *handler.AuthHandler,
	memoryH *handler.MemoryHandler,
	attackH *handler.AttackHandler,
	missionH *handler.MissionHandler,
	dashH *handler.DashboardHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		cfg:            cfg,
		authValidator:  authValidator,
		authHandler:    authH,
		memoryHandler:  memoryH,
		attackHandler:  attackH,
		missionHandler: missionH,
		dashHandler:    dashH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Чтение памяти (Episodes / Rules)
		r.Route("/v1/memory", func(r chi.Router) {
			r.Get("/episodes", s.memoryHandler.ListEpisodes)
			r.Get("/rules", s.memoryHandler.ListRules)
		})

		// Деактивация правила (soft-delete)
		r.Post("/v1/rules/{id}/deactivate", s.memoryHandler.DeactivateRule)

		// Харнесс противника
		r.Route("/v1/attack", func(r chi.Router) {
			r.Post("/episodic", s.attackHandler.Episodic)
			r.Post("/semantic", s.attackHandler.Semantic)
		})

		// Прогоны миссии
		r.Route("/v1/mission", func(r chi.Router) {
			r.Post("/start", s.missionHandler.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/events", s.missionHandler.Events)
				r.Get("/summary", s.missionHandler.Summary)
			})
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
