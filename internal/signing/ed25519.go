package signing

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cloudflare/circl/sign/ed25519"
	"golang.org/x/crypto/sha3"

	dErrors "tml/pkg/domain-errors"
)

// Ed25519Oracle signs certificate payloads with the service key and verifies
// attestation signatures against DID-registered public keys.
type Ed25519Oracle struct {
	private  ed25519.PrivateKey
	public   ed25519.PublicKey
	resolver KeyResolver
}

// NewEd25519Oracle constructs the oracle. resolver may be nil when no
// client-side attestation signatures are expected (every verification then
// reports false without error, matching the store-regardless policy).
func NewEd25519Oracle(private ed25519.PrivateKey, resolver KeyResolver) *Ed25519Oracle {
	return &Ed25519Oracle{
		private:  private,
		public:   private.Public().(ed25519.PublicKey),
		resolver: resolver,
	}
}

// GenerateKey creates a fresh service keypair; rand may be nil for
// crypto/rand.
func GenerateKey(rand io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand)
}

func (o *Ed25519Oracle) VerifyAttestationSignature(ctx context.Context, payload []byte, signatureB64, signerDID string) (bool, error) {
	if o.resolver == nil {
		return false, nil
	}
	publicKey, err := o.resolver.ResolvePublicKey(ctx, signerDID)
	if err != nil {
		return false, nil
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, nil
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, nil
	}
	digest := sha3.Sum256(payload)
	return ed25519.Verify(ed25519.PublicKey(publicKey), digest[:], sig), nil
}

func (o *Ed25519Oracle) MintCertificate(_ context.Context, input MintInput) (Minted, error) {
	if len(input.Attestations) == 0 {
		return Minted{}, dErrors.New(dErrors.CodeValidation, "cannot mint certificate over zero attestations")
	}

	canonical, err := canonicalPayload(input)
	if err != nil {
		return Minted{}, dErrors.Wrap(dErrors.CodeInternal, "canonicalize certificate payload", err)
	}

	digest := sha3.Sum256(canonical)
	sig := ed25519.Sign(o.private, digest[:])

	return Minted{
		CertificateHash:  hex.EncodeToString(digest[:]),
		DigitalSignature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

func (o *Ed25519Oracle) VerifyCertificateSignature(_ context.Context, certificateHash, signatureB64 string) (bool, error) {
	digest, err := hex.DecodeString(certificateHash)
	if err != nil {
		return false, fmt.Errorf("decode certificate hash: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("decode certificate signature: %w", err)
	}
	return ed25519.Verify(o.public, digest, sig), nil
}

// canonicalPayload serializes the mint input with attestations ordered by id
// so the hash is stable regardless of ledger iteration order.
func canonicalPayload(input MintInput) ([]byte, error) {
	sorted := make([]AttestationDigest, len(input.Attestations))
	copy(sorted, input.Attestations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AttestationID.String() < sorted[j].AttestationID.String()
	})
	return json.Marshal(MintInput{
		MilestoneID:  input.MilestoneID,
		ProjectID:    input.ProjectID,
		Attestations: sorted,
	})
}
