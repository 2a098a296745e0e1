/*-------------------------------------------------------------------------
 *
 * verifier_test.go
 *    Tests for HMAC signature verification
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/signature/verifier_test.go
 *
 *-------------------------------------------------------------------------
 */

package signature

import (
	"fmt"
	"testing"
	"time"
)

func newTestVerifier(secret string, at time.Time) *Verifier {
	v := NewVerifier(secret, 300)
	v.now = func() time.Time { return at }
	return v
}

/* TestVerifyValidSignature tests that a correctly signed body passes */
func TestVerifyValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("secret", now)

	body := []byte(`{"request_id":"abc"}`)
	ts := fmt.Sprintf("%d", now.Unix())
	sig := Sign("secret", ts, body)

	if err := v.Verify(ts, body, sig); err != nil {
		t.Errorf("Expected valid signature to verify, got %v", err)
	}
}

/* TestVerifyWrongSecret tests that a signature from another secret fails */
func TestVerifyWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("secret", now)

	body := []byte(`{"request_id":"abc"}`)
	ts := fmt.Sprintf("%d", now.Unix())
	sig := Sign("other-secret", ts, body)

	if err := v.Verify(ts, body, sig); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

/* TestVerifyTamperedBody tests that body tampering invalidates the signature */
func TestVerifyTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("secret", now)

	ts := fmt.Sprintf("%d", now.Unix())
	sig := Sign("secret", ts, []byte(`{"amount":1}`))

	if err := v.Verify(ts, []byte(`{"amount":1000}`), sig); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

/* TestVerifyReplayWindow tests the bounded timestamp skew */
func TestVerifyReplayWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("secret", now)
	body := []byte(`{}`)

	cases := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"fresh", 0, true},
		{"within window past", -299 * time.Second, true},
		{"within window future", 299 * time.Second, true},
		{"stale", -301 * time.Second, false},
		{"too far in future", 301 * time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := fmt.Sprintf("%d", now.Add(tc.offset).Unix())
			sig := Sign("secret", ts, body)
			err := v.Verify(ts, body, sig)
			if tc.valid && err != nil {
				t.Errorf("Expected timestamp at offset %v to verify, got %v", tc.offset, err)
			}
			if !tc.valid && err != ErrInvalidSignature {
				t.Errorf("Expected ErrInvalidSignature at offset %v, got %v", tc.offset, err)
			}
		})
	}
}

/* TestVerifyMissingInputs tests rejection before HMAC computation */
func TestVerifyMissingInputs(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("secret", now)

	if err := v.Verify("", []byte(`{}`), "deadbeef"); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature for missing timestamp, got %v", err)
	}
	if err := v.Verify("1700000000", []byte(`{}`), ""); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature for missing signature, got %v", err)
	}
	if err := v.Verify("not-a-number", []byte(`{}`), "deadbeef"); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature for malformed timestamp, got %v", err)
	}
}

/* TestVerifyBody tests the untimestamped webhook signature mode */
func TestVerifyBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("webhook-secret", now)
	body := []byte(`{"runId": "r-1", "status": "RUNNING"}`)

	if err := v.VerifyBody(body, SignBody("webhook-secret", body)); err != nil {
		t.Errorf("Expected valid body signature, got %v", err)
	}
	if err := v.VerifyBody(body, SignBody("other-secret", body)); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature for wrong secret, got %v", err)
	}
	if err := v.VerifyBody(body, ""); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature for missing signature, got %v", err)
	}
}
