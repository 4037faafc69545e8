package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestRun_ListingHappyPath(t *testing.T) {
	scenario := &Scenario{
		Name:      "listing_happy_path",
		Accounts:  []Account{{Address: "0xseller"}},
		RunTokens: []string{"run-1"},
		Flow: []Step{
			{
				Action: "create_listing", Account: "0xseller",
				Name: "Aurora", Description: "signed", Price: "750", Data: "aurora-bytes",
				Expect: &Expect{Outcome: "ok", Listing: 1},
			},
			{
				Action: "load_catalog", Account: "0xseller",
				Expect: &Expect{Outcome: "ok", Count: intPtr(1)},
			},
		},
		Assertions: []Assertion{
			{Type: "approved", Account: "0xseller"},
			{Type: "catalog_ids", IDs: []uint64{1}},
			{Type: "trace_steps", Run: "run-1", Steps: []string{"validate", "pin-asset", "pin-metadata", "mint", "approve", "list"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)
	assert.Len(t, result.Trace, 6)
}

func TestRun_PurchaseSettles(t *testing.T) {
	scenario := &Scenario{
		Name: "purchase_settles",
		Accounts: []Account{
			{Address: "0xseller"},
			{Address: "0xbuyer", Balance: "2000"},
		},
		Setup: []Step{
			{Action: "create_listing", Account: "0xseller", Name: "Vertex", Description: "one of one", Price: "1000", Data: "vertex-bytes"},
		},
		Flow: []Step{
			{Action: "purchase", Account: "0xbuyer", Listing: 1, Expect: &Expect{Outcome: "ok"}},
		},
		Assertions: []Assertion{
			// Buyer pays 1010 (price plus 1% fee), seller receives 1000.
			{Type: "balance", Account: "0xbuyer", Amount: "990"},
			{Type: "balance", Account: "0xseller", Amount: "1000"},
			{Type: "catalog_count", Count: 0},
			{Type: "catalog_ids", Account: "0xbuyer", Scope: "purchased", IDs: []uint64{1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)
}

func TestRun_FeePercentOverride(t *testing.T) {
	scenario := &Scenario{
		Name:       "fee_percent_override",
		FeePercent: 5,
		Accounts: []Account{
			{Address: "0xseller"},
			{Address: "0xbuyer", Balance: "1050"},
		},
		Setup: []Step{
			{Action: "create_listing", Account: "0xseller", Name: "Quill", Description: "etching", Price: "1000", Data: "quill-bytes"},
		},
		Flow: []Step{
			{Action: "purchase", Account: "0xbuyer", Listing: 1, Expect: &Expect{Outcome: "ok"}},
		},
		Assertions: []Assertion{
			{Type: "balance", Account: "0xbuyer", Amount: "0"},
			{Type: "balance", Account: "0xseller", Amount: "1000"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)
}

func TestRun_StalePurchaseRejected(t *testing.T) {
	scenario := &Scenario{
		Name: "stale_purchase_rejected",
		Accounts: []Account{
			{Address: "0xseller"},
			{Address: "0xfirst", Balance: "2000"},
			{Address: "0xsecond", Balance: "2000"},
		},
		Setup: []Step{
			{Action: "create_listing", Account: "0xseller", Name: "Solstice", Description: "unique", Price: "1000", Data: "solstice-bytes"},
		},
		Flow: []Step{
			{Action: "purchase", Account: "0xfirst", Listing: 1, Expect: &Expect{Outcome: "ok"}},
			// The second buyer acts on a view that predates the sale.
			{Action: "purchase", Account: "0xsecond", Listing: 1, Expect: &Expect{Outcome: "TX"}},
		},
		Assertions: []Assertion{
			{Type: "balance", Account: "0xsecond", Amount: "2000"},
			{Type: "catalog_ids", Account: "0xfirst", Scope: "purchased", IDs: []uint64{1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)
}

func TestRun_RefreshFailureKeepsSettlement(t *testing.T) {
	scenario := &Scenario{
		Name: "refresh_failure_keeps_settlement",
		Accounts: []Account{
			{Address: "0xseller"},
			{Address: "0xbuyer", Balance: "2000"},
		},
		Setup: []Step{
			{Action: "create_listing", Account: "0xseller", Name: "Cinder", Description: "ash print", Price: "1000", Data: "cinder-bytes"},
		},
		Flow: []Step{
			{
				Action: "purchase", Account: "0xbuyer", Listing: 1,
				Break:  "item-count",
				Expect: &Expect{Outcome: "ok", RefreshFailed: true},
			},
		},
		Assertions: []Assertion{
			// The sale settled even though the view refresh failed.
			{Type: "balance", Account: "0xbuyer", Amount: "990"},
			{Type: "balance", Account: "0xseller", Amount: "1000"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)
}

func TestRun_BreakInjection(t *testing.T) {
	tests := []struct {
		name    string
		brk     string
		outcome string
	}{
		{"pin file failure", "pin-file", "PUBLISH"},
		{"pin json failure", "pin-json", "PUBLISH"},
		{"mint rejected", "mint", "TX"},
		{"approval rejected", "approve", "TX"},
		{"listing rejected", "list", "TX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:     "break_" + tt.brk,
				Accounts: []Account{{Address: "0xseller"}},
				Flow: []Step{
					{
						Action: "create_listing", Account: "0xseller",
						Name: "Broken", Description: "never lands", Price: "100", Data: "broken-bytes",
						Break:  tt.brk,
						Expect: &Expect{Outcome: tt.outcome},
					},
				},
				Assertions: []Assertion{
					{Type: "catalog_count", Count: 0},
				},
			}

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Passed, "failures: %v", result.Failures)
		})
	}
}

func TestRun_BreakClearsAfterStep(t *testing.T) {
	scenario := &Scenario{
		Name:     "break_clears_after_step",
		Accounts: []Account{{Address: "0xseller"}},
		Flow: []Step{
			{
				Action: "create_listing", Account: "0xseller",
				Name: "First", Description: "fails", Price: "100", Data: "first-bytes",
				Break:  "mint",
				Expect: &Expect{Outcome: "TX"},
			},
			{
				Action: "create_listing", Account: "0xseller",
				Name: "Second", Description: "lands", Price: "100", Data: "second-bytes",
				Expect: &Expect{Outcome: "ok", Listing: 1},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)
}

func TestRun_ValidationOutcome(t *testing.T) {
	scenario := &Scenario{
		Name:     "validation_outcome",
		Accounts: []Account{{Address: "0xseller"}},
		Flow: []Step{
			{
				Action: "create_listing", Account: "0xseller",
				Name: "  ", Description: "blank name", Price: "100", Data: "bytes",
				Expect: &Expect{Outcome: "VALIDATION"},
			},
			{
				// A fractional price never parses to minor units.
				Action: "create_listing", Account: "0xseller",
				Name: "Fraction", Description: "bad price", Price: "1.5", Data: "bytes",
				Expect: &Expect{Outcome: "VALIDATION"},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Passed, "failures: %v", result.Failures)

	// Each rejected input still records its validate step.
	require.Len(t, result.Trace, 2)
	for _, ev := range result.Trace {
		assert.Equal(t, "validate", ev.Step)
		assert.Equal(t, "fail", ev.Status)
	}
}

func TestRun_ExpectationMismatchReported(t *testing.T) {
	scenario := &Scenario{
		Name:     "expectation_mismatch",
		Accounts: []Account{{Address: "0xseller"}},
		Flow: []Step{
			{
				Action: "create_listing", Account: "0xseller",
				Name: "Fine", Description: "succeeds", Price: "100", Data: "fine-bytes",
				Expect: &Expect{Outcome: "TX"},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "outcome ok, want TX")
}

func TestRun_AssertionFailureReported(t *testing.T) {
	scenario := &Scenario{
		Name:     "assertion_failure",
		Accounts: []Account{{Address: "0xholder", Balance: "500"}},
		Flow: []Step{
			{Action: "load_catalog", Account: "0xholder", Expect: &Expect{Outcome: "ok", Count: intPtr(0)}},
		},
		Assertions: []Assertion{
			{Type: "balance", Account: "0xholder", Amount: "999"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "balance")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:     "setup_failure",
		Accounts: []Account{{Address: "0xseller"}},
		Setup: []Step{
			{Action: "create_listing", Account: "0xseller", Name: "Doomed", Description: "x", Price: "100", Data: "d", Break: "mint"},
		},
		Flow: []Step{
			{Action: "load_catalog", Account: "0xseller"},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0")
}

func TestRun_ScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Passed, "failures: %v", result.Failures)
		})
	}
}
