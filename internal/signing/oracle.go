// Package signing defines the signature oracle the core consumes for
// attestation verification and certificate minting. The default
// implementation signs with Ed25519; external certificate authorities can be
// substituted behind the Oracle interface.
package signing

import (
	"context"

	id "tml/pkg/domain"
)

// AttestationDigest is the per-attestation slice of the certificate payload.
type AttestationDigest struct {
	AttestationID id.AttestationID `json:"attestation_id"`
	ActorID       id.ActorID       `json:"actor_id"`
	Type          string           `json:"type"`
	EvidenceHash  string           `json:"evidence_hash"`
}

// MintInput is the canonical payload a certificate attests to.
type MintInput struct {
	MilestoneID  id.MilestoneID      `json:"milestone_id"`
	ProjectID    id.ProjectID        `json:"project_id"`
	Attestations []AttestationDigest `json:"attestations"`
}

// Minted is the oracle's output for a successful certificate mint.
type Minted struct {
	CertificateHash  string
	DigitalSignature string
}

// Oracle verifies attestation signatures and mints compliance certificates.
type Oracle interface {
	// VerifyAttestationSignature checks a client-side signature over the
	// submission payload. A false result is a policy decision for the
	// caller, not an error.
	VerifyAttestationSignature(ctx context.Context, payload []byte, signatureB64, signerDID string) (bool, error)
	// MintCertificate hashes and signs the canonical certificate payload.
	MintCertificate(ctx context.Context, input MintInput) (Minted, error)
	// VerifyCertificateSignature re-checks a stored certificate.
	VerifyCertificateSignature(ctx context.Context, certificateHash, signatureB64 string) (bool, error)
}

// KeyResolver maps a signer DID to its registered Ed25519 public key.
type KeyResolver interface {
	ResolvePublicKey(ctx context.Context, did string) ([]byte, error)
}
