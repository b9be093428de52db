package api

import (
	"net/http"

	"pos-service/internal/api/handlers"
	"pos-service/internal/auth"
	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Orders    *handlers.OrderHandler
	Products  *handlers.ProductHandler
	Visitors  *handlers.VisitorHandler
	Auth      *handlers.AuthHandler
	Tokens    *auth.TokenManager
	Admins    repository.AdminRepository
	UploadDir string
}

// NewRouter wires the HTTP surface. Routes under requireAuth need a
// valid admin bearer token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	requireAuth := auth.Middleware(cfg.Tokens, cfg.Admins)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.Auth.Register)
			r.Post("/login", cfg.Auth.Login)
			r.With(requireAuth).Post("/verify", cfg.Auth.Verify)

			// User management is restricted to the admin role.
			r.Route("/users", func(r chi.Router) {
				r.Use(requireAuth)
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Get("/", cfg.Auth.Users)
				r.Post("/", cfg.Auth.CreateUser)
				r.Put("/{id}", cfg.Auth.UpdateUser)
				r.Delete("/{id}", cfg.Auth.DeleteUser)
				r.Patch("/{id}/toggle", cfg.Auth.ToggleUser)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/meta/categories", cfg.Products.Categories)
			r.Get("/{id}", cfg.Products.GetByID)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", cfg.Products.Create)
				r.Put("/{id}", cfg.Products.Update)
				r.Post("/{id}/image", cfg.Products.UploadImage)
				r.Delete("/{id}", cfg.Products.Delete)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", cfg.Orders.Create)
			r.Get("/{id}", cfg.Orders.Get)
			r.Post("/{id}/payment-proof", cfg.Orders.UploadPaymentProof)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", cfg.Orders.List)
				r.Put("/{id}/validate", cfg.Orders.ValidatePayment)
				r.Get("/stats/summary", cfg.Orders.Stats)
			})
		})

		r.Route("/qrcode", func(r chi.Router) {
			r.With(requireAuth).Post("/generate", cfg.Visitors.Generate)
			r.Get("/verify/{qr_data}", cfg.Visitors.Verify)
			r.With(requireAuth).Put("/{visitor_id}/status", cfg.Visitors.UpdateStatus)
			r.With(requireAuth).Delete("/{visitor_id}", cfg.Visitors.Delete)
		})

		r.Route("/entry", func(r chi.Router) {
			r.Post("/scan", cfg.Visitors.Scan)
			r.With(requireAuth).Get("/visitors", cfg.Visitors.List)
			r.With(requireAuth).Get("/movements", cfg.Visitors.Movements)
		})
	})

	fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir)))
	r.Get("/uploads/*", fileServer.ServeHTTP)

	return r
}
