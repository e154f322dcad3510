package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/order"
	"github.com/example/ec-storefront/internal/pricing"
	"github.com/example/ec-storefront/internal/session"
	"github.com/go-chi/chi/v5"
)

// Handlers serves cart and order endpoints
type Handlers struct {
	catalog  catalog.Store
	orders   order.Store
	sessions *session.Manager
}

func NewHandlers(cat catalog.Store, orders order.Store, sessions *session.Manager) *Handlers {
	return &Handlers{
		catalog:  cat,
		orders:   orders,
		sessions: sessions,
	}
}

// Cart Handlers

// CartResponse is the rehydrated cart with server-side prices
type CartResponse struct {
	Lines         []pricing.LineQuote `json:"lines"`
	Totals        pricing.Totals      `json:"totals"`
	TotalQuantity int                 `json:"total_quantity"`
}

func newCartResponse(c cart.Cart) (CartResponse, error) {
	quotes, totals, err := c.Quote()
	if err != nil {
		return CartResponse{}, err
	}
	if quotes == nil {
		quotes = []pricing.LineQuote{}
	}
	return CartResponse{Lines: quotes, Totals: totals, TotalQuantity: c.TotalQuantity()}, nil
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	c, err := cart.Read(r.Context(), h.catalog, sess.Cart.Items)
	if err != nil {
		log.Printf("[API] Failed to read cart: %v", err)
		respondError(w, "failed to load cart", http.StatusInternalServerError)
		return
	}
	h.respondCart(w, c)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ItemID == "" {
		respondError(w, cart.ErrInvalidItem.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.catalog.FindByID(r.Context(), req.ItemID)
	if errors.Is(err, catalog.ErrItemNotFound) {
		respondError(w, "Item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[API] Failed to look up item %s: %v", req.ItemID, err)
		respondError(w, "failed to load item", http.StatusInternalServerError)
		return
	}

	h.applyCartAction(w, r, cart.Add(*item, req.Quantity))
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.applyCartAction(w, r, cart.Update(chi.URLParam(r, "itemID"), req.Quantity))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	h.applyCartAction(w, r, cart.Remove(chi.URLParam(r, "itemID")))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.applyCartAction(w, r, cart.Clear())
}

// applyCartAction rehydrates the session cart, applies a and writes the
// result back to the session cookie before responding
func (h *Handlers) applyCartAction(w http.ResponseWriter, r *http.Request, a cart.Action) {
	sess := session.FromContext(r.Context())
	c, err := cart.Read(r.Context(), h.catalog, sess.Cart.Items)
	if err != nil {
		log.Printf("[API] Failed to read cart: %v", err)
		respondError(w, "failed to load cart", http.StatusInternalServerError)
		return
	}

	next, err := cart.Apply(c, a)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sessions.Write(w, sess.WithCart(next)); err != nil {
		log.Printf("[API] Failed to write session: %v", err)
		respondError(w, "failed to save cart", http.StatusInternalServerError)
		return
	}
	h.respondCart(w, next)
}

func (h *Handlers) respondCart(w http.ResponseWriter, c cart.Cart) {
	res, err := newCartResponse(c)
	if err != nil {
		log.Printf("[API] Failed to price cart: %v", err)
		respondError(w, "failed to price cart", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	uid := session.FromContext(r.Context()).UserID()
	if uid == nil {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), *uid)
	if err != nil {
		log.Printf("[API] Failed to list orders for user %d: %v", *uid, err)
		respondError(w, "failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.FindByID(r.Context(), chi.URLParam(r, "orderID"))
	if errors.Is(err, order.ErrOrderNotFound) {
		respondError(w, "Order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[API] Failed to load order: %v", err)
		respondError(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	// Authorization check: user can only access their own orders (admins can access all)
	sess := session.FromContext(r.Context())
	if !sess.HasRole(auth.RoleAdmin) && (sess.User == nil || !o.IsOwnedBy(sess.User.ID)) {
		respondError(w, "Forbidden", http.StatusForbidden)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	to, err := order.ParseStatus(req.Status)
	if err != nil || !isAdminStatus(to) {
		respondError(w, "status must be one of processing, completed, cancelled", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "orderID")
	o, err := h.orders.UpdateStatus(r.Context(), id, to)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		respondError(w, "Order not found", http.StatusNotFound)
		return
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrCaptureRequired),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrOrderCompleted):
		respondError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.Printf("[API] Failed to update order %s: %v", id, err)
		respondError(w, "failed to update order", http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Order %s moved to %s", o.ID, o.Status)
	respondJSON(w, http.StatusOK, o)
}

func isAdminStatus(s order.Status) bool {
	for _, a := range order.AdminStatuses {
		if a == s {
			return true
		}
	}
	return false
}

func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}
