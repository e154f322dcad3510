package api

import (
	"net/http"
	"time"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/ratelimit"
	"github.com/example/ec-storefront/internal/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handlers         *Handlers
	AuthHandlers     *AuthHandlers
	CheckoutHandlers *CheckoutHandlers
	Sessions         *session.Manager
	// CheckoutLimiter guards create-order
	CheckoutLimiter ratelimit.Limiter
	// TrustProxy rewrites RemoteAddr from X-Real-IP / X-Forwarded-For
	TrustProxy bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(cfg.Sessions))

		// Session
		r.Post("/session/login", cfg.AuthHandlers.Login)
		r.Post("/session/logout", cfg.AuthHandlers.Logout)
		r.Get("/session/me", cfg.AuthHandlers.Me)

		// Cart
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Handlers.GetCart)
			r.Delete("/", cfg.Handlers.ClearCart)
			r.Post("/items", cfg.Handlers.AddToCart)
			r.Put("/items/{itemID}", cfg.Handlers.UpdateCartItem)
			r.Delete("/items/{itemID}", cfg.Handlers.RemoveFromCart)
		})

		// Checkout
		r.Route("/checkout", func(r chi.Router) {
			r.With(middleware.RateLimit(cfg.CheckoutLimiter)).Post("/create-order", cfg.CheckoutHandlers.CreateOrder)
			r.Post("/capture-order", cfg.CheckoutHandlers.CaptureOrder)
		})

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Get("/", cfg.Handlers.GetOrders)
			r.Get("/{orderID}", cfg.Handlers.GetOrder)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Patch("/orders/{orderID}/status", cfg.Handlers.UpdateOrderStatus)
		})
	})

	return r
}
