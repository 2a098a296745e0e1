/*-------------------------------------------------------------------------
 *
 * format.go
 *    Formatting helpers for AgentGate diagnostics
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <eng@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/utils/format.go
 *
 *-------------------------------------------------------------------------
 */

package utils

import (
	"fmt"
	"strings"
)

/* FormatConnectionInfo returns a human-readable connection description */
func FormatConnectionInfo(host string, port int, database, user string) string {
	return fmt.Sprintf("%s:%d/%s (user=%s)", host, port, database, user)
}

/* FormatQueryContext returns a compact description of a failed query
 * for error messages. The query text is collapsed to one line. */
func FormatQueryContext(query string, paramCount int, operation, table string) string {
	flat := strings.Join(strings.Fields(query), " ")
	if len(flat) > 200 {
		flat = flat[:200] + "..."
	}
	return fmt.Sprintf("operation=%s, table=%s, params=%d, query='%s'", operation, table, paramCount, flat)
}
