package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/ariefcatur/go-realtime-bowls/internal/realtime"
	"github.com/ariefcatur/go-realtime-bowls/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const (
	mutationTimeout = 5 * time.Second
	readTimeout     = 3 * time.Second
)

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, key, orderID string) error
}

type Handler struct {
	Svc       *service.Service
	Feed      *realtime.Feed
	Idem      IdempotencyStore // optional
	Log       logrus.FieldLogger
	Heartbeat time.Duration
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))

			r.Post("/orders", h.createOrder)
			r.Get("/orders/{id}", h.getOrder)
			r.Post("/orders/{id}/price", h.setPrice)
			r.Post("/orders/{id}/status", h.advanceStatus)
			r.Post("/orders/{id}/payments/cash", h.confirmCashPayment)

			r.Get("/bowls/{id}", h.getBowl)
			r.Get("/bowls/{id}/active-order", h.activeOrderForBowl)

			r.Get("/kitchen/orders", h.listKitchenQueue)
			r.Get("/cashier/orders", h.listCashierFeed)
		})
		// long-lived; no request timeout
		r.Get("/subscribe", h.subscribe)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.Log, err)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.NewOrder
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mutationTimeout)
	defer cancel()

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.Idem != nil {
		// replay: the key already produced an order
		if id, ok, err := h.Idem.Lookup(ctx, key); err != nil {
			h.Log.WithError(err).Warn("idempotency lookup failed")
		} else if ok {
			o, err := h.Svc.GetOrder(ctx, id)
			if err == nil {
				w.Header().Set("Idempotent-Replayed", "true")
				writeJSON(w, http.StatusOK, o)
				return
			}
			h.Log.WithError(err).WithField("order_id", id).Warn("idempotent order not readable")
		}
	}

	o, err := h.Svc.CreateOrder(ctx, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if key != "" && h.Idem != nil {
		if err := h.Idem.Remember(ctx, key, o.ID); err != nil {
			h.Log.WithError(err).WithField("order_id", o.ID).Warn("idempotency remember failed")
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Svc.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) getBowl(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	b, err := h.Svc.GetBowl(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) activeOrderForBowl(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Svc.ActiveOrderForBowl(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*orders.Order{"order": o})
}

type setPriceReq struct {
	TotalPrice *int64 `json:"totalPrice"`
}

func (h *Handler) setPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.TotalPrice == nil {
		h.fail(w, r, apperr.Validation(map[string]string{"totalPrice": "required"}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mutationTimeout)
	defer cancel()

	o, err := h.Svc.SetPrice(ctx, chi.URLParam(r, "id"), *req.TotalPrice)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type advanceReq struct {
	Status string `json:"status"`
}

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	var req advanceReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := orders.ValidateAdvanceTarget(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mutationTimeout)
	defer cancel()

	o, err := h.Svc.AdvanceStatus(ctx, chi.URLParam(r, "id"), target)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type paymentResp struct {
	Payment orders.Payment `json:"payment"`
	Order   orders.Order   `json:"order"`
}

func (h *Handler) confirmCashPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), mutationTimeout)
	defer cancel()

	p, o, err := h.Svc.ConfirmCashPayment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResp{Payment: p, Order: o})
}

type listResp struct {
	Orders []orders.Order `json:"orders"`
}

func (h *Handler) listKitchenQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Svc.ListKitchenQueue(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{Orders: list})
}

func (h *Handler) listCashierFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Svc.ListCashierFeed(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{Orders: list})
}
