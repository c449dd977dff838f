//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseActorID checks that parsing never panics on arbitrary input and
// that accepted values round-trip through String.
func FuzzParseActorID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseActorID(input)
		if err != nil {
			return
		}
		roundTrip, err2 := ParseActorID(id.String())
		if err2 != nil {
			t.Errorf("accepted ID failed round-trip: %v", err2)
		}
		if roundTrip != id {
			t.Error("round-trip changed ID value")
		}
	})
}

// FuzzParseAllIDs ensures every ID type applies the same validation.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errActor := ParseActorID(input)
		_, errProject := ParseProjectID(input)
		_, errMilestone := ParseMilestoneID(input)
		_, errAttestation := ParseAttestationID(input)
		_, errDispute := ParseDisputeID(input)

		if errActor == nil {
			if errProject != nil || errMilestone != nil || errAttestation != nil || errDispute != nil {
				t.Error("inconsistent parsing across ID types")
			}
		} else {
			if errProject == nil || errMilestone == nil || errAttestation == nil || errDispute == nil {
				t.Error("inconsistent rejection across ID types")
			}
		}
	})
}
