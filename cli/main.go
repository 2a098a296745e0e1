/*-------------------------------------------------------------------------
 *
 * main.go
 *    Main entry point for agentgate-cli
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/cli/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"github.com/cockpithq/agentgate/cli/cmd"
)

func main() {
	cmd.Execute()
}
