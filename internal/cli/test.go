package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessella/bazaar/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of one scenario execution.
type ScenarioResult struct {
	Name     string   `json:"name"`
	Pass     bool     `json:"pass"`
	Failures []string `json:"failures,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against the marketplace pipelines.

Each YAML scenario file executes in a fresh in-memory world. Step
outcomes, end-state assertions, and (when present) a golden trace file
are all checked.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  bazaar test ./scenarios
  bazaar test ./scenarios --filter "purchase*"
  bazaar test ./scenarios --update
  bazaar test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles finds YAML scenario files in a directory, applying
// the optional base-name filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario executes one scenario file and returns its result.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	report := func(res ScenarioResult) ScenarioResult {
		if opts.Format != "json" {
			if res.Pass {
				fmt.Fprintf(w, "✓ %s\n", res.Name)
			} else {
				fmt.Fprintf(w, "✗ %s\n", res.Name)
				for _, f := range res.Failures {
					fmt.Fprintf(w, "  %s\n", f)
				}
			}
		}
		return res
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return report(ScenarioResult{
			Name:     filepath.Base(scenarioFile),
			Failures: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		})
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return report(ScenarioResult{
			Name:     scenario.Name,
			Failures: []string{fmt.Sprintf("execution failed: %v", err)},
		})
	}

	res := ScenarioResult{Name: scenario.Name, Pass: result.Passed, Failures: result.Failures}

	goldenPath := goldenFilePath(scenarioFile, scenario.Name)
	if opts.Update {
		if err := writeGoldenFile(goldenPath, scenario.Name, result); err != nil {
			res.Pass = false
			res.Failures = append(res.Failures, fmt.Sprintf("failed to update golden file: %v", err))
			return report(res)
		}
		if opts.Format != "json" {
			fmt.Fprintf(w, "  golden updated: %s\n", goldenPath)
		}
		return report(res)
	}

	if _, err := os.Stat(goldenPath); err == nil {
		match, err := compareWithGolden(goldenPath, scenario.Name, result)
		if err != nil {
			res.Pass = false
			res.Failures = append(res.Failures, fmt.Sprintf("golden comparison failed: %v", err))
		} else if !match {
			res.Pass = false
			res.Failures = append(res.Failures, "trace does not match golden file (run with --update to regenerate)")
		}
	}
	return report(res)
}

// goldenFilePath derives a scenario's golden file location: a "golden"
// directory next to the scenario file.
func goldenFilePath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func goldenBytes(name string, result *harness.Result) ([]byte, error) {
	snapshot := harness.TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return json.MarshalIndent(&snapshot, "", "  ")
}

func writeGoldenFile(path, name string, result *harness.Result) error {
	data, err := goldenBytes(name, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func compareWithGolden(path, name string, result *harness.Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	got, err := goldenBytes(name, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(got)), nil
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\n%d passed, %d failed (%d total)\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}
