// Package handler exposes project and milestone administration.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tml/internal/actor"
	"tml/internal/geofence"
	"tml/internal/platform/middleware"
	"tml/internal/project"
	"tml/internal/transport/http/shared"
	id "tml/pkg/domain"
)

// Service defines the project operations the transport needs.
type Service interface {
	CreateProject(ctx context.Context, input project.CreateProjectInput, caller actor.Identity) (*project.Project, error)
	GetProject(ctx context.Context, projectID id.ProjectID) (*project.Project, error)
	CreateMilestone(ctx context.Context, input project.CreateMilestoneInput, caller actor.Identity) (*project.Milestone, error)
	GetMilestone(ctx context.Context, milestoneID id.MilestoneID) (*project.Milestone, error)
	ListMilestones(ctx context.Context, projectID id.ProjectID) ([]*project.Milestone, error)
	TransitionMilestone(ctx context.Context, milestoneID id.MilestoneID, to project.MilestoneStatus, caller actor.Identity) (*project.Milestone, error)
}

type Handler struct {
	logger       *slog.Logger
	projects     Service
	jwtValidator middleware.JWTValidator
}

func New(projects Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		projects:     projects,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the project routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		router.Post("/projects", h.handleCreateProject)
		router.Get("/projects/{projectID}", h.handleGetProject)
		router.Post("/projects/{projectID}/milestones", h.handleCreateMilestone)
		router.Get("/projects/{projectID}/milestones", h.handleListMilestones)
		router.Get("/milestones/{milestoneID}", h.handleGetMilestone)
		router.Post("/milestones/{milestoneID}/transition", h.handleTransition)
	})
}

type pointPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type createProjectRequest struct {
	Name     string         `json:"name"`
	Boundary []pointPayload `json:"boundary,omitempty"`
}

type projectResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Boundary  []pointPayload `json:"boundary,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toProjectResponse(p *project.Project) projectResponse {
	boundary := make([]pointPayload, 0, len(p.Boundary))
	for _, pt := range p.Boundary {
		boundary = append(boundary, pointPayload{Latitude: pt.Latitude, Longitude: pt.Longitude})
	}
	return projectResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		Boundary:  boundary,
		CreatedAt: p.CreatedAt,
	}
}

type createMilestoneRequest struct {
	SequenceNumber         int    `json:"sequenceNumber"`
	Title                  string `json:"title"`
	RequiredInspectorCount int    `json:"requiredInspectorCount"`
	RequiredAuditorCount   int    `json:"requiredAuditorCount"`
	RequiredCitizenCount   int    `json:"requiredCitizenCount"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

type milestoneResponse struct {
	ID                     string     `json:"id"`
	ProjectID              string     `json:"projectId"`
	SequenceNumber         int        `json:"sequenceNumber"`
	Title                  string     `json:"title"`
	Status                 string     `json:"status"`
	RequiredInspectorCount int        `json:"requiredInspectorCount"`
	RequiredAuditorCount   int        `json:"requiredAuditorCount"`
	RequiredCitizenCount   int        `json:"requiredCitizenCount"`
	CurrentRotationRound   int        `json:"currentRotationRound"`
	CreatedAt              time.Time  `json:"createdAt"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
}

func toMilestoneResponse(m *project.Milestone) milestoneResponse {
	return milestoneResponse{
		ID:                     m.ID.String(),
		ProjectID:              m.ProjectID.String(),
		SequenceNumber:         m.SequenceNumber,
		Title:                  m.Title,
		Status:                 string(m.Status),
		RequiredInspectorCount: m.RequiredInspectorCount,
		RequiredAuditorCount:   m.RequiredAuditorCount,
		RequiredCitizenCount:   m.RequiredCitizenCount,
		CurrentRotationRound:   m.CurrentRotationRound,
		CreatedAt:              m.CreatedAt,
		CompletedAt:            m.CompletedAt,
	}
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createProjectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	boundary := make([]geofence.Point, 0, len(req.Boundary))
	for _, pt := range req.Boundary {
		boundary = append(boundary, geofence.Point{Latitude: pt.Latitude, Longitude: pt.Longitude})
	}

	p, err := h.projects.CreateProject(r.Context(), project.CreateProjectInput{
		Name:     req.Name,
		Boundary: boundary,
	}, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toProjectResponse(p))
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	p, err := h.projects.GetProject(r.Context(), projectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *Handler) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createMilestoneRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	m, err := h.projects.CreateMilestone(r.Context(), project.CreateMilestoneInput{
		ProjectID:              projectID,
		SequenceNumber:         req.SequenceNumber,
		Title:                  req.Title,
		RequiredInspectorCount: req.RequiredInspectorCount,
		RequiredAuditorCount:   req.RequiredAuditorCount,
		RequiredCitizenCount:   req.RequiredCitizenCount,
	}, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toMilestoneResponse(m))
}

func (h *Handler) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	milestones, err := h.projects.ListMilestones(r.Context(), projectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]milestoneResponse, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, toMilestoneResponse(m))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"milestones": out})
}

func (h *Handler) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	m, err := h.projects.GetMilestone(r.Context(), milestoneID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toMilestoneResponse(m))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	caller, err := shared.Identity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	milestoneID, err := id.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req transitionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	m, err := h.projects.TransitionMilestone(r.Context(), milestoneID, project.MilestoneStatus(req.Status), caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toMilestoneResponse(m))
}
