package harness

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario for the marketplace workflows.
// A scenario seeds accounts and listings, executes a flow of pipeline
// operations with expected outcomes, and asserts on the resulting
// catalog, balances, and trace.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files derive their
	// filename from it.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// FeePercent overrides the marketplace protocol fee. Zero keeps the
	// default.
	FeePercent int64 `yaml:"fee_percent,omitempty"`

	// Accounts lists the wallet accounts taking part, with their
	// starting balances in minor units.
	Accounts []Account `yaml:"accounts"`

	// RunTokens fixes the pipeline run tokens for deterministic trace
	// output. When the flow performs more pipeline runs than tokens
	// given, the remainder are numbered automatically.
	RunTokens []string `yaml:"run_tokens,omitempty"`

	// Setup steps run before the main flow and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of operations with expected outcomes.
	Flow []Step `yaml:"flow"`

	// Assertions validate final state after the flow completes.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Account seeds one wallet account.
type Account struct {
	Address string `yaml:"address"`

	// Balance in minor units, decimal string. Empty means zero.
	Balance string `yaml:"balance,omitempty"`
}

// Step is one operation in a scenario flow.
type Step struct {
	// Action is one of "create_listing", "purchase", "load_catalog".
	Action string `yaml:"action"`

	// Account performs the action.
	Account string `yaml:"account"`

	// Creation arguments.
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Price       string `yaml:"price,omitempty"`
	Data        string `yaml:"data,omitempty"`

	// Listing selects the target for "purchase".
	Listing uint64 `yaml:"listing,omitempty"`

	// Break injects a failure into the named collaborator operation for
	// the duration of this step: "pin-file", "pin-json", "mint",
	// "approve", "list", "purchase", "fetch", "item-count".
	Break string `yaml:"break,omitempty"`

	// Expect validates the step outcome. Nil means the step must
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a step's expected outcome.
type Expect struct {
	// Outcome is "ok" or an error code (VALIDATION, PUBLISH, TX,
	// INSUFFICIENT_FUNDS, SYNC, NO_PROVIDER).
	Outcome string `yaml:"outcome"`

	// Listing is the expected new listing ID for "create_listing".
	Listing uint64 `yaml:"listing,omitempty"`

	// Count is the expected entry count for "load_catalog".
	Count *int `yaml:"count,omitempty"`

	// RefreshFailed expects a successful purchase whose catalog refresh
	// failed separately.
	RefreshFailed bool `yaml:"refresh_failed,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of "catalog_count", "catalog_ids", "catalog_excludes",
	// "balance", "approved", "trace_steps".
	Type string `yaml:"type"`

	// Account scopes catalog and balance assertions; defaults to the
	// first scenario account.
	Account string `yaml:"account,omitempty"`

	// Scope selects the catalog view for catalog assertions: "unsold"
	// (default), "seller", or "purchased".
	Scope string `yaml:"scope,omitempty"`

	Count   int      `yaml:"count,omitempty"`
	IDs     []uint64 `yaml:"ids,omitempty"`
	Listing uint64   `yaml:"listing,omitempty"`
	Amount  string   `yaml:"amount,omitempty"`
	Run     string   `yaml:"run,omitempty"`
	Steps   []string `yaml:"steps,omitempty"`
}

// knownActions and knownAssertions gate validation.
var (
	knownActions    = map[string]bool{"create_listing": true, "purchase": true, "load_catalog": true}
	knownAssertions = map[string]bool{
		"catalog_count": true, "catalog_ids": true, "catalog_excludes": true,
		"balance": true, "approved": true, "trace_steps": true,
	}
	knownScopes = map[string]bool{"": true, "unsold": true, "seller": true, "purchased": true}
	knownBreaks = map[string]bool{
		"": true, "pin-file": true, "pin-json": true, "mint": true,
		"approve": true, "list": true, "purchase": true, "fetch": true, "item-count": true,
	}
)

// LoadScenario reads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks structural correctness before execution.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Accounts) == 0 {
		return fmt.Errorf("scenario %q: at least one account is required", s.Name)
	}
	addrs := make(map[string]bool, len(s.Accounts))
	for i, acct := range s.Accounts {
		if acct.Address == "" {
			return fmt.Errorf("scenario %q: account %d has no address", s.Name, i)
		}
		if addrs[acct.Address] {
			return fmt.Errorf("scenario %q: duplicate account %s", s.Name, acct.Address)
		}
		addrs[acct.Address] = true
		if acct.Balance != "" {
			if _, ok := new(big.Int).SetString(acct.Balance, 10); !ok {
				return fmt.Errorf("scenario %q: account %s balance %q is not a decimal integer", s.Name, acct.Address, acct.Balance)
			}
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("scenario %q: flow must not be empty", s.Name)
	}
	for i, step := range append(append([]Step{}, s.Setup...), s.Flow...) {
		if !knownActions[step.Action] {
			return fmt.Errorf("scenario %q: step %d has unknown action %q", s.Name, i, step.Action)
		}
		if step.Account == "" {
			return fmt.Errorf("scenario %q: step %d has no account", s.Name, i)
		}
		if !addrs[step.Account] {
			return fmt.Errorf("scenario %q: step %d uses undeclared account %s", s.Name, i, step.Account)
		}
		if !knownBreaks[step.Break] {
			return fmt.Errorf("scenario %q: step %d has unknown break %q", s.Name, i, step.Break)
		}
	}
	for i, a := range s.Assertions {
		if !knownAssertions[a.Type] {
			return fmt.Errorf("scenario %q: assertion %d has unknown type %q", s.Name, i, a.Type)
		}
		if !knownScopes[a.Scope] {
			return fmt.Errorf("scenario %q: assertion %d has unknown scope %q", s.Name, i, a.Scope)
		}
		if a.Account != "" && !addrs[a.Account] {
			return fmt.Errorf("scenario %q: assertion %d uses undeclared account %s", s.Name, i, a.Account)
		}
	}
	return nil
}
