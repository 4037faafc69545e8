package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessella/bazaar/internal/harness"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// FileValidation holds the validation result for one scenario file.
type FileValidation struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateResult holds the overall validation result.
type ValidateResult struct {
	Files   []FileValidation `json:"files"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <scenario-file>...",
		Short: "Validate scenario files",
		Long: `Validate scenario files without executing them.

Checks YAML structure, declared accounts, action names, break points,
and assertion types.

Exit codes:
  0 - All files valid
  1 - One or more files invalid

Examples:
  bazaar validate scenarios/create_and_purchase.yaml
  bazaar validate scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	result := ValidateResult{Files: make([]FileValidation, 0, len(files))}

	for _, file := range files {
		fv := FileValidation{File: file, Valid: true}
		if _, err := harness.LoadScenario(file); err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Invalid++
		} else {
			result.Valid++
		}
		result.Files = append(result.Files, fv)

		if opts.Format != "json" {
			if fv.Valid {
				fmt.Fprintf(w, "✓ %s\n", file)
			} else {
				fmt.Fprintf(w, "✗ %s\n  %s\n", file, fv.Error)
			}
		}
	}

	if opts.Format == "json" {
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return err
		}
	}
	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d files invalid", result.Invalid, len(files)))
	}
	return nil
}
