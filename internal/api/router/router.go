package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-rx/internal/capture"
	"github.com/wolfman30/clinic-rx/internal/compliance"
	httpmiddleware "github.com/wolfman30/clinic-rx/internal/http/middleware"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/internal/patients"
	"github.com/wolfman30/clinic-rx/internal/payments"
	"github.com/wolfman30/clinic-rx/internal/prescriptions"
	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	CaptureHandler       *capture.Handler
	TemplatesHandler     *overlay.Handler
	PatientsHandler      *patients.Handler
	PrescriptionsHandler *prescriptions.Handler
	PaymentsHandler      *payments.Handler
	AuditHandler         *compliance.Handler
	MetricsHandler       http.Handler
	CORSAllowedOrigins   []string

	// JWTSecret enables bearer-token auth. When empty and DevHeaders is set,
	// X-Clinic-Id and X-Role headers are trusted instead.
	JWTSecret  string
	DevHeaders bool

	// RenderRate limits image, document and print renders per clinic.
	RenderRate  float64
	RenderBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	authenticate := clinicAuth(cfg)
	if authenticate == nil {
		return r
	}

	renderLimit := func(next http.Handler) http.Handler { return next }
	if cfg.RenderRate > 0 {
		burst := cfg.RenderBurst
		if burst <= 0 {
			burst = 1
		}
		renderLimit = httpmiddleware.RateLimit(cfg.RenderRate, burst)
	}

	doctor := httpmiddleware.RequireRole(tenancy.RoleDoctor)
	desk := httpmiddleware.RequireRole(tenancy.RoleDoctor, tenancy.RoleStaff)
	billing := httpmiddleware.RequireRole(tenancy.RoleStaff)
	admin := httpmiddleware.RequireRole()

	r.Route("/api", func(api chi.Router) {
		api.Use(authenticate)

		if cfg.CaptureHandler != nil {
			api.With(doctor).Post("/capture", cfg.CaptureHandler.Replay)
		}

		if cfg.TemplatesHandler != nil {
			api.Route("/templates", func(tr chi.Router) {
				tr.Get("/", cfg.TemplatesHandler.List)
				tr.With(doctor).Post("/header/logo", cfg.TemplatesHandler.UploadLogo)
				tr.With(doctor).Delete("/header/logo", cfg.TemplatesHandler.DeleteLogo)
				tr.Route("/{kind}", func(kr chi.Router) {
					kr.Get("/", cfg.TemplatesHandler.Get)
					kr.With(doctor).Put("/", cfg.TemplatesHandler.Put)
					kr.With(doctor).Patch("/", cfg.TemplatesHandler.Patch)
					kr.With(doctor).Delete("/", cfg.TemplatesHandler.Reset)
				})
			})
		}

		if cfg.PatientsHandler != nil {
			api.Route("/patients", func(pr chi.Router) {
				pr.With(desk).Post("/", cfg.PatientsHandler.Create)
				pr.Get("/", cfg.PatientsHandler.List)
				pr.Get("/{patientID}", cfg.PatientsHandler.Get)
				if cfg.PrescriptionsHandler != nil {
					pr.Get("/{patientID}/prescriptions", cfg.PrescriptionsHandler.ListByPatient)
				}
			})
		}

		if cfg.PrescriptionsHandler != nil {
			api.Route("/prescriptions", func(rx chi.Router) {
				rx.With(doctor).Post("/", cfg.PrescriptionsHandler.Create)
				rx.Route("/{prescriptionID}", func(one chi.Router) {
					one.Get("/", cfg.PrescriptionsHandler.Get)
					one.With(doctor).Patch("/", cfg.PrescriptionsHandler.Update)
					one.Get("/preview", cfg.PrescriptionsHandler.Preview)
					one.With(renderLimit).Get("/image.png", cfg.PrescriptionsHandler.Image)
					one.With(renderLimit).Get("/document.pdf", cfg.PrescriptionsHandler.Document)
					one.With(renderLimit).Get("/print", cfg.PrescriptionsHandler.Print)
					if cfg.PaymentsHandler != nil {
						one.With(billing).Post("/payments", cfg.PaymentsHandler.Create)
						one.Get("/payments", cfg.PaymentsHandler.List)
					}
				})
			})
		}

		if cfg.PaymentsHandler != nil {
			api.With(billing).Patch("/payments/{paymentID}", cfg.PaymentsHandler.UpdateStatus)
		}

		if cfg.AuditHandler != nil {
			api.With(admin).Get("/audit", cfg.AuditHandler.ListEvents)
		}
	})

	return r
}

func clinicAuth(cfg *Config) func(http.Handler) http.Handler {
	if cfg.JWTSecret != "" {
		return httpmiddleware.StaffJWT(cfg.JWTSecret)
	}
	if cfg.DevHeaders {
		return requireClinicHeaders
	}
	if cfg.Logger != nil {
		cfg.Logger.Warn("no JWT secret configured; /api routes disabled")
	}
	return nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
