// Package handler exposes the dispute lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tml/internal/actor"
	"tml/internal/dispute"
	"tml/internal/platform/middleware"
	"tml/internal/transport/http/shared"
	id "tml/pkg/domain"
)

// Service defines the dispute operations the transport needs.
type Service interface {
	File(ctx context.Context, input dispute.FileInput, caller actor.Identity) (*dispute.Dispute, error)
	Review(ctx context.Context, disputeID id.DisputeID, caller actor.Identity) (*dispute.Dispute, error)
	Resolve(ctx context.Context, disputeID id.DisputeID, input dispute.ResolveInput, caller actor.Identity) (*dispute.Dispute, error)
	Get(ctx context.Context, disputeID id.DisputeID) (*dispute.Dispute, error)
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*dispute.Dispute, error)
}

type Handler struct {
	logger       *slog.Logger
	disputes     Service
	jwtValidator middleware.JWTValidator
}

func New(disputes Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		disputes:     disputes,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the dispute routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Post("/disputes", h.handleFile)
		router.Get("/disputes/{disputeID}", h.handleGet)
		router.Post("/disputes/{disputeID}/review", h.handleReview)
		router.Post("/disputes/{disputeID}/resolve", h.handleResolve)
		router.Get("/milestones/{milestoneID}/disputes", h.handleListByMilestone)
	})
}

type fileRequest struct {
	MilestoneID  string `json:"milestoneId"`
	Reason       string `json:"reason"`
	EvidenceHash string `json:"evidenceHash,omitempty"`
}

type resolveRequest struct {
	Outcome             string `json:"outcome"`
	ResolutionNotes     string `json:"resolutionNotes,omitempty"`
	ReassignedAuditorID string `json:"reassignedAuditorId,omitempty"`
}

type disputeResponse struct {
	ID                  string     `json:"id"`
	MilestoneID         string     `json:"milestoneId"`
	FiledBy             string     `json:"filedBy"`
	Reason              string     `json:"reason"`
	EvidenceHash        string     `json:"evidenceHash,omitempty"`
	Status              string     `json:"status"`
	ResolutionNotes     string     `json:"resolutionNotes,omitempty"`
	ReassignedAuditorID string     `json:"reassignedAuditorId,omitempty"`
	FiledAt             time.Time  `json:"filedAt"`
	ReviewedAt          *time.Time `json:"reviewedAt,omitempty"`
	ResolvedAt          *time.Time `json:"resolvedAt,omitempty"`
}

func toResponse(d *dispute.Dispute) disputeResponse {
	resp := disputeResponse{
		ID:              d.ID.String(),
		MilestoneID:     d.MilestoneID.String(),
		FiledBy:         d.FiledBy.String(),
		Reason:          d.Reason,
		EvidenceHash:    d.EvidenceHash,
		Status:          string(d.Status),
		ResolutionNotes: d.ResolutionNotes,
		FiledAt:         d.FiledAt,
		ReviewedAt:      d.ReviewedAt,
		ResolvedAt:      d.ResolvedAt,
	}
	if !d.ReassignedAuditorID.IsNil() {
		resp.ReassignedAuditorID = d.ReassignedAuditorID.String()
	}
	return resp
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req fileRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	milestoneID, err := id.ParseMilestoneID(req.MilestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	d, err := h.disputes.File(r.Context(), dispute.FileInput{
		MilestoneID:  milestoneID,
		Reason:       req.Reason,
		EvidenceHash: req.EvidenceHash,
	}, caller)
	if err != nil {
		h.logger.WarnContext(r.Context(), "dispute filing rejected",
			"request_id", middleware.GetRequestID(r.Context()),
			"milestone_id", req.MilestoneID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(d))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	d, err := h.disputes.Get(r.Context(), disputeID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	d, err := h.disputes.Review(r.Context(), disputeID, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req resolveRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	input := dispute.ResolveInput{
		Outcome:         dispute.Outcome(req.Outcome),
		ResolutionNotes: req.ResolutionNotes,
	}
	if req.ReassignedAuditorID != "" {
		auditorID, err := id.ParseActorID(req.ReassignedAuditorID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		input.ReassignedAuditorID = auditorID
	}

	d, err := h.disputes.Resolve(r.Context(), disputeID, input, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *Handler) handleListByMilestone(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	disputes, err := h.disputes.ListByMilestone(r.Context(), milestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]disputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, toResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"disputes": out})
}
