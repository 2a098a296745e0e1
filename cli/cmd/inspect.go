/*-------------------------------------------------------------------------
 *
 * inspect.go
 *    Run, health, and budget inspection commands for agentgate-cli
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cli/cmd/inspect.go
 *
 *-------------------------------------------------------------------------
 */

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cockpithq/agentgate/cli/pkg/client"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [run-id]",
		Short: "Show run state and progress",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	healthCmd = &cobra.Command{
		Use:   "health [agent-key]",
		Short: "Show agent health and circuit breaker state",
		Args:  cobra.ExactArgs(1),
		RunE:  showHealth,
	}

	budgetCmd = &cobra.Command{
		Use:   "budget [department-key]",
		Short: "Show department budget usage for the current period",
		Args:  cobra.ExactArgs(1),
		RunE:  showBudget,
	}
)

func showRun(cmd *cobra.Command, args []string) error {
	apiClient := client.NewClient(apiURL, apiKey, triggerSecret)

	run, err := apiClient.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(run)
	}

	fmt.Printf("Run %s\n", run.RunID)
	fmt.Printf("  Agent:      %s\n", run.AgentKey)
	fmt.Printf("  Department: %s\n", run.DepartmentKey)
	fmt.Printf("  Status:     %s\n", run.Status)
	fmt.Printf("  Progress:   %d%%\n", run.Progress)
	if run.Summary != nil {
		fmt.Printf("  Summary:    %s\n", *run.Summary)
	}
	if run.Error != nil {
		fmt.Printf("  Error:      %s\n", *run.Error)
	}
	if run.CorrelationID != "" {
		fmt.Printf("  Correlation: %s\n", run.CorrelationID)
	}
	fmt.Printf("  Created:    %s\n", run.CreatedAt)
	fmt.Printf("  Updated:    %s\n", run.UpdatedAt)

	return nil
}

func showHealth(cmd *cobra.Command, args []string) error {
	apiClient := client.NewClient(apiURL, apiKey, triggerSecret)

	health, err := apiClient.GetAgentHealth(args[0])
	if err != nil {
		return fmt.Errorf("failed to get agent health: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(health)
	}

	fmt.Printf("Agent %s\n", health.AgentKey)
	fmt.Printf("  Breaker:       %s\n", health.CircuitBreaker)
	fmt.Printf("  Success rate:  %.2f\n", health.SuccessRate)
	fmt.Printf("  Error rate:    %.2f\n", health.ErrorRate)
	fmt.Printf("  Avg time:      %.1f ms\n", health.AvgExecutionTimeMs)
	fmt.Printf("  Avg cost:      %.2f EUR\n", health.AvgCostEUR)
	fmt.Printf("  Samples:       %d\n", health.SampleCount)

	return nil
}

func showBudget(cmd *cobra.Command, args []string) error {
	apiClient := client.NewClient(apiURL, apiKey, triggerSecret)

	snapshot, err := apiClient.GetDepartmentBudget(args[0])
	if err != nil {
		return fmt.Errorf("failed to get department budget: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(snapshot)
	}

	fmt.Printf("Department %s\n", snapshot.DepartmentKey)
	fmt.Printf("  Policy:  %s\n", snapshot.Policy)
	fmt.Printf("  Budget:  %.2f EUR\n", snapshot.MonthlyBudgetEUR)
	fmt.Printf("  Spent:   %.2f EUR\n", snapshot.SpentEUR)
	fmt.Printf("  Used:    %.1f%%\n", snapshot.PctUsed)
	fmt.Printf("  Period:  %s\n", snapshot.PeriodStart)

	return nil
}
