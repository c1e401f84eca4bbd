package provider

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func testSigner() *Signer {
	return &Signer{
		KeyID:   "AKIDEXAMPLE",
		Secret:  "secret",
		Host:    "asr.example.com",
		Version: "2023-09-30",
	}
}

func TestSignerMissingCredentials(t *testing.T) {
	s := &Signer{Host: "asr.example.com"}
	_, err := s.Sign("GET", "/tasks/x", nil, nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestSignerDeterministicForFixedInputs(t *testing.T) {
	s := testSigner()
	query := url.Values{"type": []string{"offline"}}
	body := []byte(`{"AppKey":"app"}`)

	a := s.sign("PUT", "/tasks", query, body, "nonce-1", "2026-03-15T10:30:00Z")
	b := s.sign("PUT", "/tasks", query, body, "nonce-1", "2026-03-15T10:30:00Z")
	if a.Headers["Authorization"] != b.Headers["Authorization"] {
		t.Error("same inputs must produce the same signature")
	}
}

func TestSignerFreshNoncePerRequest(t *testing.T) {
	s := testSigner()
	a, err := s.Sign("GET", "/tasks/x", nil, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := s.Sign("GET", "/tasks/x", nil, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a.Headers["x-acs-signature-nonce"] == b.Headers["x-acs-signature-nonce"] {
		t.Error("nonce reused across requests")
	}
	if a.Headers["Authorization"] == b.Headers["Authorization"] {
		t.Error("signature reused across requests; requests must not be replayable")
	}
}

func TestSignerHeaders(t *testing.T) {
	s := testSigner()
	req, err := s.Sign("PUT", "/tasks", url.Values{"type": []string{"offline"}}, []byte(`{}`))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	for _, h := range []string{
		"x-acs-date", "x-acs-signature-nonce", "x-acs-signature-method",
		"x-acs-version", "x-acs-content-sha256", "content-type", "host",
	} {
		if req.Headers[h] == "" {
			t.Errorf("header %s missing", h)
		}
	}
	if req.Headers["x-acs-signature-method"] != "HMAC-SHA256" {
		t.Errorf("signature method = %q", req.Headers["x-acs-signature-method"])
	}

	auth := req.Headers["Authorization"]
	if !strings.HasPrefix(auth, "ACS3-HMAC-SHA256 Credential=AKIDEXAMPLE,") {
		t.Errorf("Authorization = %q", auth)
	}
	if !strings.Contains(auth, "SignedHeaders=content-type;host;x-acs-content-sha256;x-acs-date;x-acs-signature-method;x-acs-signature-nonce;x-acs-version,") {
		t.Errorf("Authorization signed headers wrong: %q", auth)
	}
	if !strings.Contains(auth, "Signature=") {
		t.Errorf("Authorization missing signature: %q", auth)
	}
}

func TestSignerEmptyBodyHash(t *testing.T) {
	s := testSigner()
	req, err := s.Sign("GET", "/tasks/x", nil, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	// SHA-256 of the empty string.
	const emptyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if req.Headers["x-acs-content-sha256"] != emptyHash {
		t.Errorf("content hash = %q, want empty-body hash", req.Headers["x-acs-content-sha256"])
	}
}

func TestCanonicalQuerySorted(t *testing.T) {
	q := url.Values{"b": []string{"2"}, "a": []string{"1"}}
	if got := canonicalQuery(q); got != "a=1&b=2" {
		t.Errorf("canonicalQuery = %q, want a=1&b=2", got)
	}
	if got := canonicalQuery(nil); got != "" {
		t.Errorf("canonicalQuery(nil) = %q, want empty", got)
	}
}
