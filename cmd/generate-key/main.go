/*-------------------------------------------------------------------------
 *
 * main.go
 *    API key generation CLI tool for AgentGate
 *
 * Command-line utility for generating API keys and shared secrets.
 * Prints the key once and the bcrypt hash to store under
 * security.api_key_hashes in the server configuration.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cmd/generate-key/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/cockpithq/agentgate/internal/auth"
)

func main() {
	var (
		secrets = flag.Bool("secrets", false, "Also generate trigger and webhook secrets")
		count   = flag.Int("n", 1, "Number of API keys to generate")
	)
	flag.Parse()

	for i := 0; i < *count; i++ {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to generate API key: %v\n", err)
			os.Exit(1)
		}
		hash, err := auth.HashAPIKey(key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to hash API key: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("API key generated successfully")
		fmt.Printf("Key:    %s\n", key)
		fmt.Printf("Prefix: %s\n", auth.GetKeyPrefix(key))
		fmt.Printf("Hash:   %s\n", hash)
		fmt.Println()
	}

	if *secrets {
		for _, name := range []string{"trigger_secret", "webhook_secret"} {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				fmt.Fprintf(os.Stderr, "Error: Failed to generate %s: %v\n", name, err)
				os.Exit(1)
			}
			fmt.Printf("%s: %s\n", name, hex.EncodeToString(buf))
		}
	}

	fmt.Fprintf(os.Stderr, "\nWarning: Save keys securely - they cannot be retrieved again after generation.\n")
}
