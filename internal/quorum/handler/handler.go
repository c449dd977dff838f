// Package handler exposes quorum breakdowns and certificate verification.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tml/internal/certificate"
	"tml/internal/platform/middleware"
	"tml/internal/quorum"
	"tml/internal/transport/http/shared"
	id "tml/pkg/domain"
)

// Service defines the quorum operations the transport needs.
type Service interface {
	Evaluate(ctx context.Context, milestoneID id.MilestoneID) (*quorum.Breakdown, error)
	VerifyCertificate(ctx context.Context, certID id.CertificateID) (bool, *certificate.Certificate, error)
}

// CertificateStore is the read side for certificate listings.
type CertificateStore interface {
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*certificate.Certificate, error)
}

type Handler struct {
	logger       *slog.Logger
	quorum       Service
	certificates CertificateStore
	jwtValidator middleware.JWTValidator
}

func New(quorumService Service, certificates CertificateStore, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		quorum:       quorumService,
		certificates: certificates,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the quorum routes. Certificate verification is public so
// any holder of a certificate id can check its standing.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Get("/milestones/{milestoneID}/quorum", h.handleQuorum)
		router.Get("/milestones/{milestoneID}/certificates", h.handleCertificates)
	})

	r.Get("/certificates/{certificateID}/verify", h.handleVerifyCertificate)
}

func (h *Handler) handleQuorum(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	breakdown, err := h.quorum.Evaluate(r.Context(), milestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, breakdown)
}

type certificateResponse struct {
	ID               string     `json:"id"`
	MilestoneID      string     `json:"milestoneId"`
	ProjectID        string     `json:"projectId"`
	CertificateHash  string     `json:"certificateHash"`
	DigitalSignature string     `json:"digitalSignature"`
	Status           string     `json:"status"`
	IssuedAt         time.Time  `json:"issuedAt"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevokedReason    string     `json:"revokedReason,omitempty"`
}

func toCertificateResponse(cert *certificate.Certificate) certificateResponse {
	return certificateResponse{
		ID:               cert.ID.String(),
		MilestoneID:      cert.MilestoneID.String(),
		ProjectID:        cert.ProjectID.String(),
		CertificateHash:  cert.CertificateHash,
		DigitalSignature: cert.DigitalSignature,
		Status:           string(cert.Status),
		IssuedAt:         cert.IssuedAt,
		RevokedAt:        cert.RevokedAt,
		RevokedReason:    cert.RevokedReason,
	}
}

func (h *Handler) handleCertificates(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	certs, err := h.certificates.ListByMilestone(r.Context(), milestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]certificateResponse, 0, len(certs))
	for _, cert := range certs {
		out = append(out, toCertificateResponse(cert))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"certificates": out})
}

func (h *Handler) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "certificateID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	valid, cert, err := h.quorum.VerifyCertificate(r.Context(), certID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":       valid,
		"certificate": toCertificateResponse(cert),
	})
}
