// Package handler exposes the attestation ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tml/internal/actor"
	"tml/internal/attestation"
	"tml/internal/geofence"
	"tml/internal/platform/device"
	"tml/internal/platform/middleware"
	"tml/internal/transport/http/shared"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

// Service defines the attestation operations the transport needs.
type Service interface {
	Submit(ctx context.Context, input attestation.SubmitInput, caller actor.Identity) (*attestation.Attestation, error)
	Revoke(ctx context.Context, attID id.AttestationID, caller actor.Identity) (*attestation.Attestation, error)
	Verify(ctx context.Context, attID id.AttestationID, caller actor.Identity) (*attestation.Attestation, error)
	List(ctx context.Context, filter attestation.ListFilter) ([]*attestation.Attestation, error)
}

type Handler struct {
	logger       *slog.Logger
	attestations Service
	jwtValidator middleware.JWTValidator
}

func New(attestations Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		attestations: attestations,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the attestation routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Post("/attestations", h.handleSubmit)
		router.Get("/attestations", h.handleList)
		router.Post("/attestations/{attestationID}/revoke", h.handleRevoke)
		router.Post("/attestations/{attestationID}/verify", h.handleVerify)
	})
}

type submitRequest struct {
	MilestoneID  string  `json:"milestoneId"`
	ActorID      string  `json:"actorId,omitempty"`
	Type         string  `json:"type"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	EvidenceHash string  `json:"evidenceHash,omitempty"`
	DeviceToken  string  `json:"deviceToken,omitempty"`
	Signature    string  `json:"signature,omitempty"`
	SignerDID    string  `json:"signerDid,omitempty"`
}

type attestationResponse struct {
	ID             string     `json:"id"`
	MilestoneID    string     `json:"milestoneId"`
	ActorID        string     `json:"actorId"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	EvidenceHash   string     `json:"evidenceHash,omitempty"`
	SignatureValid bool       `json:"signatureValid"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

func toResponse(att *attestation.Attestation) attestationResponse {
	return attestationResponse{
		ID:             att.ID.String(),
		MilestoneID:    att.MilestoneID.String(),
		ActorID:        att.ActorID.String(),
		Type:           string(att.Type),
		Status:         string(att.Status),
		Latitude:       att.Location.Latitude,
		Longitude:      att.Location.Longitude,
		EvidenceHash:   att.EvidenceHash,
		SignatureValid: att.SignatureValid,
		SubmittedAt:    att.SubmittedAt,
		VerifiedAt:     att.VerifiedAt,
		RevokedAt:      att.RevokedAt,
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req submitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	milestoneID, err := id.ParseMilestoneID(req.MilestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	input := attestation.SubmitInput{
		MilestoneID:  milestoneID,
		Type:         attestation.Type(req.Type),
		Location:     geofence.Point{Latitude: req.Latitude, Longitude: req.Longitude},
		EvidenceHash: req.EvidenceHash,
		DeviceToken:  req.DeviceToken,
		Signature:    req.Signature,
		SignerDID:    req.SignerDID,
	}
	if input.DeviceToken == "" {
		input.DeviceToken = device.Fingerprint(r.UserAgent(), r.RemoteAddr)
	}
	if req.ActorID != "" {
		actorID, err := id.ParseActorID(req.ActorID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		input.ActorID = actorID
	}

	att, err := h.attestations.Submit(ctx, input, caller)
	if err != nil {
		h.logger.WarnContext(ctx, "attestation submission rejected",
			"request_id", middleware.GetRequestID(ctx),
			"milestone_id", req.MilestoneID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "attestation submitted",
		"request_id", middleware.GetRequestID(ctx),
		"attestation_id", att.ID.String(),
		"device", device.DisplayName(r.UserAgent()),
	)
	shared.WriteJSON(w, http.StatusCreated, toResponse(att))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := attestation.ListFilter{
		Type:   attestation.Type(r.URL.Query().Get("type")),
		Status: attestation.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("milestoneId"); raw != "" {
		milestoneID, err := id.ParseMilestoneID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.MilestoneID = milestoneID
	}
	if raw := r.URL.Query().Get("actorId"); raw != "" {
		actorID, err := id.ParseActorID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.ActorID = actorID
	}
	filter.Limit, filter.Offset = shared.Pagination(r)

	attestations, err := h.attestations.List(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]attestationResponse, 0, len(attestations))
	for _, att := range attestations {
		out = append(out, toResponse(att))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"attestations": out})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.attestations.Revoke)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.attestations.Verify)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AttestationID, actor.Identity) (*attestation.Attestation, error)) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	attID, err := id.ParseAttestationID(chi.URLParam(r, "attestationID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	att, err := op(r.Context(), attID, caller)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeConflict) && !dErrors.HasCode(err, dErrors.CodeNotFound) &&
			!dErrors.HasCode(err, dErrors.CodeAuthorization) {
			h.logger.ErrorContext(r.Context(), "attestation lifecycle operation failed",
				"request_id", middleware.GetRequestID(r.Context()),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(att))
}
