/*-------------------------------------------------------------------------
 *
 * trigger.go
 *    Trigger command for agentgate-cli
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cli/cmd/trigger.go
 *
 *-------------------------------------------------------------------------
 */

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cockpithq/agentgate/cli/pkg/client"
)

var (
	triggerCmd = &cobra.Command{
		Use:   "trigger [agent-key]",
		Short: "Submit a signed trigger request for an agent",
		Args:  cobra.ExactArgs(1),
		RunE:  triggerAgent,
	}

	triggerPayload     string
	triggerPayloadFile string
	triggerRequestID   string
	triggerOrgID       string
	triggerActor       string
	triggerIdemKey     string
	triggerCorrID      string
	triggerDryRun      bool
)

func init() {
	triggerCmd.Flags().StringVarP(&triggerPayload, "payload", "p", "", "JSON payload for the agent")
	triggerCmd.Flags().StringVarP(&triggerPayloadFile, "payload-file", "f", "", "Path to a JSON payload file")
	triggerCmd.Flags().StringVar(&triggerRequestID, "request-id", "", "Request UUID (generated if omitted)")
	triggerCmd.Flags().StringVar(&triggerOrgID, "org", "", "Organization identifier")
	triggerCmd.Flags().StringVar(&triggerActor, "actor", "", "Actor submitting the trigger")
	triggerCmd.Flags().StringVar(&triggerIdemKey, "idempotency-key", "", "Idempotency key (generated if omitted)")
	triggerCmd.Flags().StringVar(&triggerCorrID, "correlation-id", "", "Correlation identifier (generated if omitted)")
	triggerCmd.Flags().BoolVar(&triggerDryRun, "dry-run", false, "Preview cost without dispatching a run")
}

func triggerAgent(cmd *cobra.Command, args []string) error {
	agentKey := args[0]

	payload, err := resolvePayload()
	if err != nil {
		return err
	}

	apiClient := client.NewClient(apiURL, apiKey, triggerSecret)
	result, err := apiClient.Trigger(agentKey, client.TriggerOptions{
		RequestID:      triggerRequestID,
		OrgID:          triggerOrgID,
		Actor:          triggerActor,
		IdempotencyKey: triggerIdemKey,
		CorrelationID:  triggerCorrID,
		DryRun:         triggerDryRun,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("failed to trigger agent: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	switch {
	case result.HTTPStatus == http.StatusAccepted:
		fmt.Println("Run admitted")
	case result.Preview != "":
		fmt.Printf("Not dispatched: %s\n", result.Preview)
	default:
		fmt.Println("Duplicate trigger, returning original run")
	}
	fmt.Printf("  Run ID: %s\n", result.RunID)
	fmt.Printf("  Status: %s\n", result.Status)
	if result.CostEUR != "" {
		fmt.Printf("  Cost:   %s EUR\n", result.CostEUR)
	}
	if result.LatencyMs != "" {
		fmt.Printf("  Latency: %s ms\n", result.LatencyMs)
	}

	return nil
}

func resolvePayload() (json.RawMessage, error) {
	if triggerPayload != "" && triggerPayloadFile != "" {
		return nil, fmt.Errorf("cannot combine --payload and --payload-file")
	}

	var raw []byte
	switch {
	case triggerPayload != "":
		raw = []byte(triggerPayload)
	case triggerPayloadFile != "":
		data, err := os.ReadFile(triggerPayloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		raw = data
	default:
		return nil, nil
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
