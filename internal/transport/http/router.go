package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/medremind-api/internal/application/device"
	fileapp "github.com/medremind-api/internal/application/file"
	"github.com/medremind-api/internal/application/medicine"
	"github.com/medremind-api/internal/application/notification"
	"github.com/medremind-api/internal/application/session"
	"github.com/medremind-api/internal/application/user"
	"github.com/medremind-api/internal/config"
	"github.com/medremind-api/internal/domain"
	"github.com/medremind-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/medremind-api/internal/infrastructure/jwt"
	s3infra "github.com/medremind-api/internal/infrastructure/s3"
	"github.com/medremind-api/internal/infrastructure/smtp"
	"github.com/medremind-api/internal/transport/http/handler"
	appmiddleware "github.com/medremind-api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	DeviceRepo       *dynamo.DeviceRepo
	MedicineRepo     *dynamo.MedicineRepo
	DoseDayRepo      *dynamo.DoseDayRepo
	NotificationRepo *dynamo.NotificationRepo
	FileRepo         *dynamo.FileRepo
	S3Store          *s3infra.Store
	Mailer           smtp.Mailer
	JWTProvider      *jwtinfra.Provider
	Logger           *slog.Logger
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	refreshDur := time.Duration(cfg.RefreshTokenExpiryDays) * 24 * time.Hour
	sessionSvc := session.NewService(deps.SessionRepo, deps.UserRepo, deps.JWTProvider)
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:        deps.UserRepo,
		SessionRepo:     deps.SessionRepo,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: refreshDur,
	})
	medicineSvc := medicine.NewService(medicine.ServiceDeps{
		MedicineRepo: deps.MedicineRepo,
		DoseDayRepo:  deps.DoseDayRepo,
		UserRepo:     deps.UserRepo,
		AuditRepo:    deps.NotificationRepo,
		Mailer:       deps.Mailer,
	}, deps.Logger)
	deviceSvc := device.NewService(deps.DeviceRepo)
	notifSvc := notification.NewService(deps.NotificationRepo)
	fileSvc := fileapp.NewService(deps.S3Store, deps.FileRepo, deps.MedicineRepo)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc)
	medicineH := handler.NewMedicineHandler(medicineSvc)
	deviceH := handler.NewDeviceHandler(deviceSvc)
	notifH := handler.NewNotificationHandler(notifSvc)
	fileH := handler.NewFileHandler(fileSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/users/{id}", userH.Get)
			r.Put("/users/{id}", userH.Update)
			r.Post("/users/change-password", userH.ChangePassword)

			r.Post("/medicines", medicineH.Create)
			r.Get("/medicines", medicineH.List)
			r.Get("/medicines/{id}", medicineH.Get)
			r.Put("/medicines/{id}", medicineH.Update)
			r.Delete("/medicines/{id}", medicineH.Delete)
			r.Put("/medicines/{id}/taken", medicineH.MarkTaken)
			r.Post("/medicines/{id}/refill", medicineH.Refill)

			r.Post("/devices/push-token", deviceH.RegisterPushToken)
			r.Get("/devices", deviceH.List)
			r.Delete("/devices/{id}", deviceH.Delete)

			r.Get("/notifications", notifH.ListUnread)
			r.Get("/notifications/{id}", notifH.Get)
			r.Put("/notifications/{id}", notifH.MarkAsRead)

			r.Post("/files", fileH.Upload)
			r.Get("/files/{id}", fileH.Download)
			r.Delete("/files/{id}", fileH.Delete)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/users", userH.List)
				r.Delete("/users/{id}", userH.Delete)
			})
		})
	})

	return r
}
