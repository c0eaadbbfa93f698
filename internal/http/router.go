package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/zonia3000/regifair/internal/cache"
	"github.com/zonia3000/regifair/internal/http/handlers"
	"github.com/zonia3000/regifair/internal/http/middlewares"
	"github.com/zonia3000/regifair/internal/observability"
)

type Deps struct {
	Env string
	Log *slog.Logger

	Events        handlers.EventsRepository
	Registrations handlers.RegistrationsRepository
	Templates     handlers.TemplatesRepository

	Queue handlers.NotificationEnqueuer

	Verifier middlewares.TokenVerifier

	Prom     *observability.Prom
	Registry *prometheus.Registry

	Pings map[string]handlers.PingFunc

	CacheTTL       time.Duration
	AllowedOrigins []string
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.AllowedOrigins))
	r.Use(otelgin.Middleware("regifair-api"))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health + metrics
	health := handlers.NewHealthHandler(deps.Pings)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	viewCache := cache.New(deps.CacheTTL)

	eventsHandler := handlers.NewEventsHandler(deps.Events, viewCache)
	registrationsHandler := handlers.NewRegistrationsHandler(deps.Registrations, deps.Events, deps.Queue, deps.Prom, deps.Log)
	templatesHandler := handlers.NewTemplatesHandler(deps.Templates)

	// anonymous surface: form rendering + registration self-service
	publicLimiter := middlewares.NewRateLimiter(30, time.Minute)

	public := r.Group("/")
	public.Use(middlewares.MaxBodyBytes(64 << 10))
	public.Use(middlewares.RequireJSON())
	public.Use(publicLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		public.GET("/events/:id", eventsHandler.GetPublicEvent)
		public.POST("/events/:id/registrations", registrationsHandler.Register)

		public.GET("/registrations/:token", registrationsHandler.GetByToken)
		public.PUT("/registrations/:token", registrationsHandler.UpdateByToken)
		public.DELETE("/registrations/:token", registrationsHandler.DeleteByToken)
	}

	// admin surface: tokens are minted by the host platform
	authMw := middlewares.NewAuthMiddleware(deps.Verifier)

	admin := r.Group("/admin")
	admin.Use(middlewares.MaxBodyBytes(1 << 20))
	admin.Use(middlewares.RequireJSON())
	admin.Use(authMw.RequireAuth())
	admin.Use(authMw.RequireRole("admin"))
	{
		admin.POST("/events", eventsHandler.CreateEvent)
		admin.GET("/events", eventsHandler.ListEvents)
		admin.GET("/events/:id", eventsHandler.GetEvent)
		admin.PUT("/events/:id", eventsHandler.UpdateEvent)
		admin.DELETE("/events/:id", eventsHandler.DeleteEvent)

		admin.GET("/events/:id/registrations", registrationsHandler.Report)
		admin.PUT("/events/:id/registrations/:registrationId", registrationsHandler.AdminUpdate)
		admin.DELETE("/events/:id/registrations/:registrationId", registrationsHandler.AdminDelete)

		admin.POST("/templates", templatesHandler.CreateTemplate)
		admin.GET("/templates", templatesHandler.ListTemplates)
		admin.GET("/templates/:id", templatesHandler.GetTemplate)
		admin.PUT("/templates/:id", templatesHandler.UpdateTemplate)
		admin.DELETE("/templates/:id", templatesHandler.DeleteTemplate)
	}

	return r
}
