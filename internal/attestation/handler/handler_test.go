package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tml/internal/actor"
	"tml/internal/attestation"
	"tml/internal/attestation/handler/mocks"
	"tml/internal/geofence"
	"tml/internal/platform/middleware"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type HandlerSuite struct {
	suite.Suite

	service *mocks.MockService
	handler *Handler
	caller  actor.Identity
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.handler = New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	s.caller = actor.Identity{ActorID: id.NewActorID(), Role: actor.RoleContractorEngineer}
}

// authed attaches the suite caller's identity the way the auth middleware
// would, so handlers can reconstruct it from the request context.
func (s *HandlerSuite) authed(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyActorID, s.caller.ActorID.String())
	ctx = context.WithValue(ctx, middleware.ContextKeyActorRole, string(s.caller.Role))
	return req.WithContext(ctx)
}

func (s *HandlerSuite) TestSubmit() {
	milestoneID := id.NewMilestoneID()
	stored := &attestation.Attestation{
		ID:          id.NewAttestationID(),
		MilestoneID: milestoneID,
		ActorID:     s.caller.ActorID,
		Type:        attestation.TypeInspectorVerification,
		Status:      attestation.StatusSubmitted,
		Location:    geofence.Point{Latitude: 0.31, Longitude: 32.58},
		SubmittedAt: time.Now().UTC(),
	}
	s.service.EXPECT().
		Submit(gomock.Any(), gomock.Any(), s.caller).
		DoAndReturn(func(_ context.Context, input attestation.SubmitInput, _ actor.Identity) (*attestation.Attestation, error) {
			s.Equal(milestoneID, input.MilestoneID)
			s.Equal(attestation.TypeInspectorVerification, input.Type)
			s.Equal("cafe01", input.EvidenceHash)
			s.NotEmpty(input.DeviceToken)
			return stored, nil
		})

	body, err := json.Marshal(map[string]any{
		"milestoneId":  milestoneID.String(),
		"type":         "inspector_verification",
		"latitude":     0.31,
		"longitude":    32.58,
		"evidenceHash": "cafe01",
	})
	s.Require().NoError(err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/attestations", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	s.handler.handleSubmit(w, req)

	s.Equal(http.StatusCreated, w.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(stored.ID.String(), resp["id"])
	s.Equal("submitted", resp["status"])
	s.Equal("inspector_verification", resp["type"])
}

func (s *HandlerSuite) TestSubmitRejectsUnknownFields() {
	req := s.authed(httptest.NewRequest(http.MethodPost, "/attestations",
		bytes.NewReader([]byte(`{"milestoneId":"x","bogus":true}`))))
	w := httptest.NewRecorder()
	s.handler.handleSubmit(w, req)

	s.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (s *HandlerSuite) TestSubmitWithoutIdentity() {
	req := httptest.NewRequest(http.MethodPost, "/attestations", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	s.handler.handleSubmit(w, req)

	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestSubmitValidationErrorEnvelope() {
	milestoneID := id.NewMilestoneID()
	s.service.EXPECT().
		Submit(gomock.Any(), gomock.Any(), s.caller).
		Return(nil, dErrors.New(dErrors.CodeValidation, "attestation location outside project boundary"))

	body, err := json.Marshal(map[string]any{
		"milestoneId": milestoneID.String(),
		"type":        "inspector_verification",
		"latitude":    51.5,
		"longitude":   -0.12,
	})
	s.Require().NoError(err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/attestations", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	s.handler.handleSubmit(w, req)

	s.Equal(http.StatusUnprocessableEntity, w.Code)
	var resp map[string]map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("validation", resp["error"]["code"])
	s.Equal("attestation location outside project boundary", resp["error"]["message"])
}

func (s *HandlerSuite) TestRevoke() {
	attID := id.NewAttestationID()
	revokedAt := time.Now().UTC()
	s.service.EXPECT().
		Revoke(gomock.Any(), attID, s.caller).
		Return(&attestation.Attestation{
			ID:        attID,
			Status:    attestation.StatusRevoked,
			RevokedAt: &revokedAt,
		}, nil)

	// Seed the chi route context so URLParam resolves without the router.
	req := s.authed(httptest.NewRequest(http.MethodPost, "/attestations/"+attID.String()+"/revoke", nil))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("attestationID", attID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	s.handler.handleRevoke(w, req)

	s.Equal(http.StatusOK, w.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("revoked", resp["status"])
}

func (s *HandlerSuite) TestList() {
	milestoneID := id.NewMilestoneID()
	s.service.EXPECT().
		List(gomock.Any(), attestation.ListFilter{MilestoneID: milestoneID, Limit: 50}).
		Return([]*attestation.Attestation{
			{ID: id.NewAttestationID(), MilestoneID: milestoneID, Status: attestation.StatusSubmitted},
		}, nil)

	req := s.authed(httptest.NewRequest(http.MethodGet, "/attestations?milestoneId="+milestoneID.String(), nil))
	w := httptest.NewRecorder()
	s.handler.handleList(w, req)

	s.Equal(http.StatusOK, w.Code)
	var resp map[string][]map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp["attestations"], 1)
}

func (s *HandlerSuite) TestListRejectsBadMilestoneID() {
	req := s.authed(httptest.NewRequest(http.MethodGet, "/attestations?milestoneId=nope", nil))
	w := httptest.NewRecorder()
	s.handler.handleList(w, req)

	s.Equal(http.StatusUnprocessableEntity, w.Code)
}
