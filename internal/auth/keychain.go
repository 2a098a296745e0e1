/*-------------------------------------------------------------------------
 *
 * keychain.go
 *    API key verification for AgentGate
 *
 * Operator API keys are distributed out of band; the server only holds
 * their bcrypt hashes. The keychain verifies presented keys against
 * that configured set.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/auth/keychain.go
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

/* Keychain holds the bcrypt hashes of accepted API keys */
type Keychain struct {
	hashes []string
}

/* NewKeychain creates a keychain from configured key hashes */
func NewKeychain(hashes []string) *Keychain {
	return &Keychain{hashes: hashes}
}

/* Verify reports whether the presented key matches any configured
 * hash. The set is small and fixed, so a linear scan is fine; bcrypt
 * already dominates the cost. */
func (k *Keychain) Verify(key string) bool {
	if key == "" {
		return false
	}
	for _, h := range k.hashes {
		if VerifyAPIKey(key, h) {
			return true
		}
	}
	return false
}

/* GenerateAPIKey creates a new random API key with the ag_ prefix */
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return "ag_" + hex.EncodeToString(buf), nil
}
