package auth

import "testing"

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewService("secret")
	token, err := svc.IssueToken("stream-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	streamID, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if streamID != "stream-1" {
		t.Fatalf("unexpected stream id %q", streamID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewService("secret-a").IssueToken("stream-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := NewService("secret-b").ValidateToken(token); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	if _, err := NewService("secret").ValidateToken("not-a-token"); err == nil {
		t.Fatalf("expected validation failure")
	}
}
