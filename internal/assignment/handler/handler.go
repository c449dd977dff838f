// Package handler exposes the selection engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tml/internal/actor"
	"tml/internal/assignment"
	"tml/internal/platform/middleware"
	"tml/internal/transport/http/shared"
	id "tml/pkg/domain"
)

// Service defines the assignment operations the transport needs.
type Service interface {
	SelectAuditors(ctx context.Context, milestoneID id.MilestoneID, count int, caller actor.Identity) ([]*assignment.AuditorAssignment, error)
	SelectCitizens(ctx context.Context, milestoneID id.MilestoneID, count int, caller actor.Identity) ([]*assignment.PoolEntry, error)
	Accept(ctx context.Context, assignmentID id.AssignmentID, caller actor.Identity) (*assignment.AuditorAssignment, error)
	Recuse(ctx context.Context, assignmentID id.AssignmentID, caller actor.Identity) (*assignment.AuditorAssignment, error)
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*assignment.AuditorAssignment, error)
	ListPool(ctx context.Context, milestoneID id.MilestoneID) ([]*assignment.PoolEntry, error)
	RevokeIssuerForFraud(ctx context.Context, did, reason string, caller actor.Identity) (*actor.TrustedIssuer, error)
}

type Handler struct {
	logger       *slog.Logger
	assignments  Service
	jwtValidator middleware.JWTValidator
}

func New(assignments Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		assignments:  assignments,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the assignment routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Post("/milestones/{milestoneID}/auditors/select", h.handleSelectAuditors)
		router.Get("/milestones/{milestoneID}/auditors", h.handleListAuditors)
		router.Post("/milestones/{milestoneID}/citizens/select", h.handleSelectCitizens)
		router.Get("/milestones/{milestoneID}/citizens", h.handleListPool)
		router.Post("/assignments/{assignmentID}/accept", h.handleAccept)
		router.Post("/assignments/{assignmentID}/recuse", h.handleRecuse)
		router.Post("/issuers/revoke", h.handleRevokeIssuer)
	})
}

type selectRequest struct {
	Count int `json:"count"`
}

type assignmentResponse struct {
	ID            string    `json:"id"`
	MilestoneID   string    `json:"milestoneId"`
	AuditorID     string    `json:"auditorId"`
	RotationRound int       `json:"rotationRound"`
	Status        string    `json:"status"`
	AssignedAt    time.Time `json:"assignedAt"`
}

func toAssignmentResponse(a *assignment.AuditorAssignment) assignmentResponse {
	return assignmentResponse{
		ID:            a.ID.String(),
		MilestoneID:   a.MilestoneID.String(),
		AuditorID:     a.AuditorID.String(),
		RotationRound: a.RotationRound,
		Status:        string(a.Status),
		AssignedAt:    a.AssignedAt,
	}
}

type poolEntryResponse struct {
	ID                 string    `json:"id"`
	MilestoneID        string    `json:"milestoneId"`
	CitizenID          string    `json:"citizenId"`
	AssuranceTier      string    `json:"assuranceTier"`
	Status             string    `json:"status"`
	ProximityProofHash string    `json:"proximityProofHash,omitempty"`
	EnrolledAt         time.Time `json:"enrolledAt"`
}

func toPoolEntryResponse(e *assignment.PoolEntry) poolEntryResponse {
	return poolEntryResponse{
		ID:                 e.ID.String(),
		MilestoneID:        e.MilestoneID.String(),
		CitizenID:          e.CitizenID.String(),
		AssuranceTier:      string(e.AssuranceTier),
		Status:             string(e.Status),
		ProximityProofHash: e.ProximityProofHash,
		EnrolledAt:         e.EnrolledAt,
	}
}

func (h *Handler) handleSelectAuditors(w http.ResponseWriter, r *http.Request) {
	caller, milestoneID, count, ok := h.selectionArgs(w, r)
	if !ok {
		return
	}
	assignments, err := h.assignments.SelectAuditors(r.Context(), milestoneID, count, caller)
	if err != nil {
		h.logger.WarnContext(r.Context(), "auditor selection failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"milestone_id", milestoneID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	out := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, toAssignmentResponse(a))
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{"assignments": out})
}

func (h *Handler) handleSelectCitizens(w http.ResponseWriter, r *http.Request) {
	caller, milestoneID, count, ok := h.selectionArgs(w, r)
	if !ok {
		return
	}
	entries, err := h.assignments.SelectCitizens(r.Context(), milestoneID, count, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]poolEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toPoolEntryResponse(e))
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{"pool": out})
}

func (h *Handler) selectionArgs(w http.ResponseWriter, r *http.Request) (actor.Identity, id.MilestoneID, int, bool) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return actor.Identity{}, id.MilestoneID{}, 0, false
	}
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return actor.Identity{}, id.MilestoneID{}, 0, false
	}
	var req selectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return actor.Identity{}, id.MilestoneID{}, 0, false
	}
	return caller, milestoneID, req.Count, true
}

func (h *Handler) handleListAuditors(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assignments, err := h.assignments.ListByMilestone(r.Context(), milestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, toAssignmentResponse(a))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"assignments": out})
}

func (h *Handler) handleListPool(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entries, err := h.assignments.ListPool(r.Context(), milestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]poolEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toPoolEntryResponse(e))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"pool": out})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.assignments.Accept)
}

func (h *Handler) handleRecuse(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.assignments.Recuse)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AssignmentID, actor.Identity) (*assignment.AuditorAssignment, error)) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	a, err := op(r.Context(), assignmentID, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAssignmentResponse(a))
}

type revokeIssuerRequest struct {
	DID    string `json:"did"`
	Reason string `json:"reason"`
}

func (h *Handler) handleRevokeIssuer(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req revokeIssuerRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	issuer, err := h.assignments.RevokeIssuerForFraud(r.Context(), req.DID, req.Reason, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"did":           issuer.DID,
		"active":        issuer.Active,
		"revokedReason": issuer.RevokedReason,
		"revokedAt":     issuer.RevokedAt,
	})
}
