package domain

import (
	"github.com/google/uuid"

	dErrors "tml/pkg/domain-errors"
)

// Typed IDs prevent cross-entity assignment mistakes (an ActorID can never be
// passed where a MilestoneID is expected). Construct via the Parse helpers at
// trust boundaries; direct casting bypasses validation.
type (
	ActorID        uuid.UUID
	OrganizationID uuid.UUID
	ProjectID      uuid.UUID
	MilestoneID    uuid.UUID
	AttestationID  uuid.UUID
	AssignmentID   uuid.UUID
	PoolEntryID    uuid.UUID
	CertificateID  uuid.UUID
	DisputeID      uuid.UUID
	SubscriptionID uuid.UUID
)

func NewActorID() ActorID               { return ActorID(uuid.New()) }
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }
func NewProjectID() ProjectID           { return ProjectID(uuid.New()) }
func NewMilestoneID() MilestoneID       { return MilestoneID(uuid.New()) }
func NewAttestationID() AttestationID   { return AttestationID(uuid.New()) }
func NewAssignmentID() AssignmentID     { return AssignmentID(uuid.New()) }
func NewPoolEntryID() PoolEntryID       { return PoolEntryID(uuid.New()) }
func NewCertificateID() CertificateID   { return CertificateID(uuid.New()) }
func NewDisputeID() DisputeID           { return DisputeID(uuid.New()) }
func NewSubscriptionID() SubscriptionID { return SubscriptionID(uuid.New()) }

func (id ActorID) String() string        { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id ProjectID) String() string      { return uuid.UUID(id).String() }
func (id MilestoneID) String() string    { return uuid.UUID(id).String() }
func (id AttestationID) String() string  { return uuid.UUID(id).String() }
func (id AssignmentID) String() string   { return uuid.UUID(id).String() }
func (id PoolEntryID) String() string    { return uuid.UUID(id).String() }
func (id CertificateID) String() string  { return uuid.UUID(id).String() }
func (id DisputeID) String() string      { return uuid.UUID(id).String() }
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }

func (id ActorID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id MilestoneID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AttestationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PoolEntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id SubscriptionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText keeps typed IDs serializing as canonical UUID strings.
func (id ActorID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id OrganizationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ProjectID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id MilestoneID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id AttestationID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id AssignmentID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id PoolEntryID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id CertificateID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id DisputeID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id SubscriptionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ActorID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ActorID(u)
	return nil
}

func (id *MilestoneID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = MilestoneID(u)
	return nil
}

func (id *ProjectID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ProjectID(u)
	return nil
}

func (id *AttestationID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = AttestationID(u)
	return nil
}

// ParseActorID constructs an ActorID from external input.
func ParseActorID(s string) (ActorID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ActorID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid actor id")
	}
	return ActorID(u), nil
}

func ParseProjectID(s string) (ProjectID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ProjectID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid project id")
	}
	return ProjectID(u), nil
}

func ParseMilestoneID(s string) (MilestoneID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MilestoneID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid milestone id")
	}
	return MilestoneID(u), nil
}

func ParseAttestationID(s string) (AttestationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AttestationID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid attestation id")
	}
	return AttestationID(u), nil
}

func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AssignmentID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid assignment id")
	}
	return AssignmentID(u), nil
}

func ParseCertificateID(s string) (CertificateID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CertificateID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid certificate id")
	}
	return CertificateID(u), nil
}

func ParseDisputeID(s string) (DisputeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DisputeID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid dispute id")
	}
	return DisputeID(u), nil
}

func ParseSubscriptionID(s string) (SubscriptionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SubscriptionID(uuid.Nil), dErrors.New(dErrors.CodeValidation, "invalid subscription id")
	}
	return SubscriptionID(u), nil
}
