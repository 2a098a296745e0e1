/*-------------------------------------------------------------------------
 *
 * root.go
 *    Root command and global flags for agentgate-cli
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cli/cmd/root.go
 *
 *-------------------------------------------------------------------------
 */

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL        string
	apiKey        string
	triggerSecret string
	outputFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "agentgate-cli",
	Short: "AgentGate CLI - Trigger agents and inspect runs",
	Long: `AgentGate CLI submits signed trigger requests to an AgentGate server
and inspects run state, agent health, and department budgets.

Examples:
  # Trigger an agent
  agentgate-cli trigger sales_followup --payload '{"lead_id": "L-1042"}'

  # Preview cost without executing
  agentgate-cli trigger sales_followup --dry-run

  # Show a run
  agentgate-cli run 6f1c9a14-3b48-4e2e-9d7e-2c55a1b0f3aa

  # Agent health and breaker state
  agentgate-cli health sales_followup

  # Department budget usage
  agentgate-cli budget sales
`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", getEnvOrDefault("AGENTGATE_URL", "http://localhost:8080"), "AgentGate API URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", getEnvOrDefault("AGENTGATE_API_KEY", ""), "AgentGate API key (required)")
	rootCmd.PersistentFlags().StringVar(&triggerSecret, "trigger-secret", getEnvOrDefault("AGENTGATE_TRIGGER_SECRET", ""), "Shared secret for trigger request signing")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format (text, json)")

	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(budgetCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
