/*-------------------------------------------------------------------------
 *
 * estimator.go
 *    Deterministic cost estimation for AgentGate
 *
 * Estimates the cost of a run from agent metadata and payload size.
 * This is a pure function of its inputs, not a live model estimate, so
 * it is independently testable and swappable without touching the
 * dispatcher. The same function serves admitted and budget-stopped
 * paths.
 *
 * Copyright (c) 2024-2025, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/budget/estimator.go
 *
 *-------------------------------------------------------------------------
 */

package budget

import (
	"math"

	"github.com/cockpithq/agentgate/internal/catalog"
)

/* payloadStepBytes is the payload size granularity for cost scaling.
 * Every started 4 KiB of payload adds one base-rate increment of 10%. */
const payloadStepBytes = 4096

/* Estimator computes deterministic run cost estimates */
type Estimator struct {
	baseRateEUR float64
}

/* NewEstimator creates an estimator with the configured base rate */
func NewEstimator(baseRateEUR float64) *Estimator {
	return &Estimator{baseRateEUR: baseRateEUR}
}

/* Estimate returns the estimated cost in EUR for dispatching an agent
 * with a payload of the given size:
 *
 *   cost = budget_weight * base_rate * (1 + 0.1 * ceil(payload/4KiB))
 *
 * rounded to whole cents. Director agents carry their weight through
 * the same formula; there is no separate director pricing path. */
func (e *Estimator) Estimate(def catalog.AgentDefinition, payloadSize int) float64 {
	if payloadSize < 0 {
		payloadSize = 0
	}
	steps := math.Ceil(float64(payloadSize) / payloadStepBytes)
	cost := def.BudgetWeight * e.baseRateEUR * (1 + 0.1*steps)
	return math.Round(cost*100) / 100
}
