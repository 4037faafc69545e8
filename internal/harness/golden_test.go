package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The golden trace pins the full observable behavior of one
// create-then-purchase flow: step order, content locators, transaction
// references, and settlement amounts. Content locators are stable
// because the fake store derives them from the pinned bytes.
func TestRunWithGolden_CreateAndPurchase(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "create_and_purchase.yaml"))
	require.NoError(t, err)

	require.NoError(t, RunWithGolden(t, scenario))
}

// Traces are reproducible: two fresh executions of the same scenario
// yield identical event streams.
func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "create_and_purchase.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	require.True(t, first.Passed, "failures: %v", first.Failures)
	assert.Equal(t, first.Trace, second.Trace)
}
