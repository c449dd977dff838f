// Package handler exposes webhook subscription administration.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tml/internal/actor"
	"tml/internal/platform/middleware"
	"tml/internal/transport/http/shared"
	"tml/internal/webhook"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	platformstrings "tml/pkg/platform/strings"
)

type Handler struct {
	logger        *slog.Logger
	subscriptions webhook.Store
	deadLetters   webhook.DeadLetterSink
	jwtValidator  middleware.JWTValidator
}

func New(subscriptions webhook.Store, deadLetters webhook.DeadLetterSink, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:        logger,
		subscriptions: subscriptions,
		deadLetters:   deadLetters,
		jwtValidator:  jwtValidator,
	}
}

// Register mounts the webhook admin routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Post("/webhooks", h.handleCreate)
		router.Get("/webhooks", h.handleList)
		router.Post("/webhooks/{subscriptionID}/deactivate", h.handleDeactivate)
		router.Get("/webhooks/dead-letters", h.handleDeadLetters)
		router.Delete("/webhooks/dead-letters", h.handleClearDeadLetters)
	})
}

type createRequest struct {
	URL        string   `json:"url"`
	Secret     string   `json:"secret"`
	EventTypes []string `json:"eventTypes,omitempty"`
}

type subscriptionResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"eventTypes,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toResponse(sub *webhook.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:         sub.ID.String(),
		URL:        sub.URL,
		EventTypes: sub.EventTypes,
		Active:     sub.Active,
		CreatedAt:  sub.CreatedAt,
	}
}

func requireAdmin(r *http.Request) (actor.Identity, error) {
	caller, err := shared.Identity(r)
	if err != nil {
		return actor.Identity{}, err
	}
	if caller.Role != actor.RoleAdmin {
		return actor.Identity{}, dErrors.New(dErrors.CodeAuthorization, "webhook administration requires admin role")
	}
	return caller, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.URL == "" || req.Secret == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "url and secret are required"))
		return
	}

	sub := &webhook.Subscription{
		ID:         id.NewSubscriptionID(),
		URL:        req.URL,
		Secret:     req.Secret,
		EventTypes: platformstrings.DedupeAndTrim(req.EventTypes),
		Active:     true,
		CreatedAt:  time.Now(),
	}
	if err := h.subscriptions.Create(r.Context(), sub); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(sub))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		shared.WriteError(w, err)
		return
	}
	subs, err := h.subscriptions.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toResponse(sub))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"subscriptions": out})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		shared.WriteError(w, err)
		return
	}
	subID, err := id.ParseSubscriptionID(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sub, err := h.subscriptions.FindByID(r.Context(), subID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sub.Active = false
	if err := h.subscriptions.Update(r.Context(), sub); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(sub))
}

type deadLetterResponse struct {
	SubscriptionID string         `json:"subscriptionId"`
	EventType      string         `json:"eventType"`
	Payload        map[string]any `json:"payload,omitempty"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"lastError"`
	FailedAt       time.Time      `json:"failedAt"`
}

func (h *Handler) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		shared.WriteError(w, err)
		return
	}
	letters, err := h.deadLetters.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]deadLetterResponse, 0, len(letters))
	for _, l := range letters {
		out = append(out, deadLetterResponse{
			SubscriptionID: l.SubscriptionID.String(),
			EventType:      l.EventType,
			Payload:        l.Payload,
			Attempts:       l.Attempts,
			LastError:      l.LastError,
			FailedAt:       l.FailedAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"deadLetters": out})
}

func (h *Handler) handleClearDeadLetters(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.deadLetters.Clear(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
