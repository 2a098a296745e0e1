/*-------------------------------------------------------------------------
 *
 * verifier.go
 *    HMAC signature verification for AgentGate
 *
 * Verifies HMAC-SHA256 signatures over timestamped request bodies with a
 * bounded replay window. Comparison is constant time and all failure
 * modes are reported through the same error value so callers cannot
 * distinguish a bad signature from a stale timestamp.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/signature/verifier.go
 *
 *-------------------------------------------------------------------------
 */

package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

/* ErrInvalidSignature is the single failure value for every verification
 * failure. Timestamp skew and signature mismatch intentionally share it. */
var ErrInvalidSignature = errors.New("invalid signature")

/* Verifier validates signed request bodies against a shared secret */
type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

/* NewVerifier creates a verifier for a shared secret and replay window */
func NewVerifier(secret string, maxSkewSeconds int) *Verifier {
	return &Verifier{
		secret:  []byte(secret),
		maxSkew: time.Duration(maxSkewSeconds) * time.Second,
		now:     time.Now,
	}
}

/* Sign computes the hex HMAC-SHA256 signature of timestamp || "." || body */
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

/* SignBody computes the hex HMAC-SHA256 signature of a bare body.
 * Executor webhooks carry no timestamp header; their replay protection
 * comes from the event idempotency key instead of a time window. */
func SignBody(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

/* VerifyBody checks an untimestamped body signature */
func (v *Verifier) VerifyBody(body []byte, sig string) error {
	if sig == "" {
		return ErrInvalidSignature
	}
	expected := SignBody(string(v.secret), body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

/* Verify checks the signature and the replay window for a request body.
 * The timestamp is a unix-epoch seconds string. Missing inputs fail
 * before any HMAC computation. */
func (v *Verifier) Verify(timestamp string, body []byte, sig string) error {
	if timestamp == "" || sig == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}

	expected := Sign(string(v.secret), timestamp, body)
	signatureOK := hmac.Equal([]byte(sig), []byte(expected))

	/* Evaluate the window after the HMAC so both failure modes cost the
	 * same amount of work. */
	if skew > v.maxSkew {
		return ErrInvalidSignature
	}
	if !signatureOK {
		return ErrInvalidSignature
	}
	return nil
}
