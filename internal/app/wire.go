// Package app assembles repositories, services and handlers into the HTTP router.
package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/assistant"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/handler"
	"github.com/refnexus/platform/internal/infra"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/projection"
	"github.com/refnexus/platform/internal/repository"
	"github.com/refnexus/platform/internal/search"
	"github.com/refnexus/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Logger *slog.Logger
	Hub    *infra.WSHub

	// StatsStore backs the referee stats cache; nil keeps it in process.
	StatsStore projection.Store
	StatsTTL   time.Duration

	Geocoder       search.Geocoder
	Interpreter    search.Interpreter
	AssistantModel assistant.Model
	Extractor      ingest.Extractor

	// AILimiter is shared with the caller so it can prune idle keys; nil
	// builds one from AIRateLimit and AIRateWindow.
	AILimiter *guard.RateLimiter

	AITimeout      time.Duration
	AIRateLimit    int
	AIRateWindow   time.Duration
	AIFailures     int
	AICircuitReset time.Duration

	AllowedOrigins []string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	logger := deps.Logger

	// Repositories
	userRepo := repository.NewPgUserRepository()
	refereeRepo := repository.NewRefereeRepository()
	leagueRepo := repository.NewLeagueRepository()
	gameRepo := repository.NewGameRepository()
	assignmentRepo := repository.NewAssignmentRepository()
	ratingRepo := repository.NewRatingRepository()
	availabilityRepo := repository.NewAvailabilityRepository()
	messageRepo := repository.NewMessageRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Guards and caches
	store := deps.StatsStore
	if store == nil {
		store = projection.NewInMemoryStore()
	}
	stats := projection.NewStatsCache(store, deps.StatsTTL, logger)
	lockout := guard.NewLockout(pool, logger)
	aiLimiter := deps.AILimiter
	if aiLimiter == nil {
		aiLimiter = guard.NewRateLimiter(deps.AIRateLimit, deps.AIRateWindow)
	}
	aiBreaker := guard.NewCircuitBreaker(deps.AIFailures, deps.AICircuitReset)

	// Services
	authSvc := service.NewAuthService(pool, userRepo, refereeRepo, leagueRepo, outboxRepo, deps.JWTMgr, lockout)
	refereeSvc := service.NewRefereeService(pool, refereeRepo, leagueRepo, gameRepo, ratingRepo, availabilityRepo, outboxRepo, stats, deps.Geocoder)
	leagueSvc := service.NewLeagueService(pool, leagueRepo)
	gameSvc := service.NewGameService(pool, gameRepo, leagueRepo, assignmentRepo, outboxRepo)
	assignmentSvc := service.NewAssignmentService(pool, gameRepo, assignmentRepo, refereeRepo, leagueRepo, outboxRepo, stats, logger)
	messageSvc := service.NewMessageService(pool, messageRepo, userRepo, gameRepo, outboxRepo, deps.Hub, logger)
	matchSvc := service.NewMatchService(refereeSvc, gameSvc, deps.Interpreter, aiLimiter, aiBreaker, deps.AITimeout, logger)
	assistantSvc := service.NewAssistantService(gameSvc, matchSvc, assignmentSvc, refereeSvc, leagueSvc, deps.AssistantModel, aiLimiter, aiBreaker, deps.AITimeout, logger)
	ingestSvc := service.NewIngestService(leagueSvc, gameSvc, deps.Extractor, aiLimiter, aiBreaker, deps.AITimeout, logger)
	exporter := service.NewScheduleExporter(pool, leagueRepo, gameRepo, assignmentRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	refereeHandler := handler.NewRefereeHandler(refereeSvc, assignmentSvc)
	leagueHandler := handler.NewLeagueHandler(leagueSvc)
	gameHandler := handler.NewGameHandler(gameSvc, assignmentSvc, exporter)
	messageHandler := handler.NewMessageHandler(messageSvc)
	aiHandler := handler.NewAIHandler(matchSvc, assistantSvc)
	importHandler := handler.NewImportHandler(ingestSvc)
	inboxSocket := handler.NewInboxSocket(deps.JWTMgr, deps.Hub, messageSvc, deps.AllowedOrigins, logger)

	requireReferee := auth.RequireRole(domain.RoleReferee)
	requireLeague := auth.RequireRole(domain.RoleLeague)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Auth routes (no auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.With(auth.Authenticate(deps.JWTMgr)).Get("/me", authHandler.Me)
	})

	// The socket authenticates from ?token= itself.
	r.Get("/messages/ws/inbox", inboxSocket.ServeHTTP)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTMgr))

		r.Route("/refs", func(r chi.Router) {
			r.Get("/search", refereeHandler.Search)

			r.Group(func(r chi.Router) {
				r.Use(requireReferee)
				r.Get("/me", refereeHandler.GetMine)
				r.Put("/me", refereeHandler.UpdateMine)
				r.Get("/me/availability", refereeHandler.ListAvailability)
				r.Post("/me/availability", refereeHandler.AddAvailability)
				r.Delete("/me/availability/{id}", refereeHandler.DeleteAvailability)
				r.Get("/me/assignments", refereeHandler.MyAssignments)
				r.Post("/assignments/{id}/respond", refereeHandler.Respond)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", refereeHandler.Get)
				r.Get("/stats", refereeHandler.Stats)
				r.Get("/ratings", refereeHandler.ListRatings)
				r.With(requireLeague).Post("/ratings", refereeHandler.Rate)
				r.Get("/notes", refereeHandler.ListNotes)
				r.With(requireLeague).Post("/notes", refereeHandler.AddNote)
			})
		})

		r.Route("/leagues/me", func(r chi.Router) {
			r.Use(requireLeague)
			r.Get("/", leagueHandler.GetMine)
			r.Put("/", leagueHandler.UpdateMine)
			r.Get("/fields", leagueHandler.ListFields)
			r.Post("/fields", leagueHandler.AddField)
			r.Post("/ingest", importHandler.Import)
		})

		r.Route("/games", func(r chi.Router) {
			r.Get("/", gameHandler.List)
			r.With(requireLeague).Post("/", gameHandler.Create)
			r.With(requireLeague).Get("/export", gameHandler.Export)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", gameHandler.Get)
				r.With(requireLeague).Patch("/", gameHandler.Update)
				r.With(requireLeague).Post("/complete", gameHandler.Complete)
				r.Get("/assignments", gameHandler.ListAssignments)
				r.With(requireLeague).Post("/assignments", gameHandler.CreateAssignment)
				r.With(requireLeague).Post("/assignments/{assignmentID}/cancel", gameHandler.CancelAssignment)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", messageHandler.Send)
			r.Get("/conversations", messageHandler.Conversations)
			r.Get("/conversations/{userID}", messageHandler.History)
			r.Post("/conversations/{userID}/read", messageHandler.MarkConversationRead)
			r.Post("/{id}/read", messageHandler.MarkRead)
			r.Get("/unread-count", messageHandler.UnreadCount)
			r.Post("/ai-chat", aiHandler.Chat)
		})

		r.With(requireLeague).Post("/ai/find-ref", aiHandler.FindRef)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, domain.ErrNotFound("route", r.URL.Path))
	})
	return r
}
