package spotify

import (
	"errors"
	"testing"
	"time"
)

func TestStateSigner_RoundTrip(t *testing.T) {
	s, err := NewStateSigner("state-secret")
	if err != nil {
		t.Fatalf("NewStateSigner() error = %v", err)
	}
	state, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := s.Verify(state); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestStateSigner_Rejects(t *testing.T) {
	s, _ := NewStateSigner("state-secret")
	other, _ := NewStateSigner("other-secret")
	foreign, _ := other.Issue()

	expiredSigner, _ := NewStateSigner("state-secret")
	expiredSigner.now = func() time.Time { return time.Now().Add(-StateExpiry - time.Minute) }
	expired, _ := expiredSigner.Issue()

	tests := []struct {
		name  string
		state string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Verify(tt.state); !errors.Is(err, ErrInvalidState) {
				t.Errorf("Verify() error = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestStateSigner_RandomSecret(t *testing.T) {
	a, err := NewStateSigner("")
	if err != nil {
		t.Fatalf("NewStateSigner() error = %v", err)
	}
	b, _ := NewStateSigner("")

	state, _ := a.Issue()
	if err := a.Verify(state); err != nil {
		t.Errorf("same signer Verify() error = %v", err)
	}
	if err := b.Verify(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("other process Verify() error = %v, want ErrInvalidState", err)
	}
}
