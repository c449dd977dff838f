// Package shared holds the JSON envelope helpers every handler uses so
// responses stay uniform across domains.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"tml/internal/actor"
	"tml/internal/platform/middleware"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

// errorBody is the wire shape of every failure response.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into its HTTP envelope. Non-domain
// errors collapse to an opaque 500 so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, map[string]errorBody{
			"error": {Code: string(dErrors.CodeInternal), Message: "internal error"},
		})
		return
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), map[string]errorBody{
		"error": {Code: string(de.Code), Message: de.Message, Details: de.Details},
	})
}

// DecodeJSON parses the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(dErrors.CodeValidation, "invalid request body", err)
	}
	return nil
}

// Identity reconstructs the authenticated caller the auth middleware stored
// on the context.
func Identity(r *http.Request) (actor.Identity, error) {
	actorID, err := id.ParseActorID(middleware.GetActorID(r.Context()))
	if err != nil {
		return actor.Identity{}, dErrors.New(dErrors.CodeAuthorization, "missing authenticated actor")
	}
	role := actor.Role(middleware.GetActorRole(r.Context()))
	if !role.IsValid() {
		return actor.Identity{}, dErrors.New(dErrors.CodeAuthorization, "missing actor role")
	}
	return actor.Identity{ActorID: actorID, Role: role}, nil
}
