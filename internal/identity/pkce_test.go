package identity

import "testing"

func TestNewCodeVerifier(t *testing.T) {
	v1 := NewCodeVerifier()
	v2 := NewCodeVerifier()
	if len(v1) < 43 {
		t.Fatalf("verifier too short: %d", len(v1))
	}
	if v1 == v2 {
		t.Error("expected distinct verifiers")
	}
}
