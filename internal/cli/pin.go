package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessella/bazaar/internal/publisher"
)

// PinOptions holds flags for the pin command.
type PinOptions struct {
	*RootOptions
	Endpoint string
	Gateway  string
	Token    string
	AsJSON   bool
}

// PinResult holds the pin command output.
type PinResult struct {
	File    string `json:"file"`
	Locator string `json:"locator"`
}

// NewPinCommand creates the pin command.
func NewPinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pin <file>",
		Short: "Pin a file to the content store",
		Long: `Pin a file to the configured pinning service and print its locator.

Configuration comes from the BAZAAR_PIN_* environment variables;
flags override individual settings.

Examples:
  bazaar pin artwork.png
  bazaar pin metadata.json --json
  bazaar pin artwork.png --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPin(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "pinning API base URL (overrides BAZAAR_PIN_ENDPOINT)")
	cmd.Flags().StringVar(&opts.Gateway, "gateway", "", "gateway prefix for locators (overrides BAZAAR_PIN_GATEWAY)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token (overrides BAZAAR_PIN_TOKEN)")
	cmd.Flags().BoolVar(&opts.AsJSON, "json", false, "pin the file content as a JSON document")

	return cmd
}

func runPin(opts *PinOptions, path string, cmd *cobra.Command) error {
	cfg, err := publisher.ConfigFromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.Gateway != "" {
		cfg.Gateway = opts.Gateway
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}

	client := publisher.New(cfg)
	ctx := cmd.Context()

	var locator string
	if opts.AsJSON {
		data, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read file", err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return WrapExitError(ExitCommandError, "file is not valid JSON", err)
		}
		loc, err := client.PinJSON(ctx, doc)
		if err != nil {
			return WrapExitError(ExitFailure, "pinning failed", err)
		}
		locator = string(loc)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open file", err)
		}
		defer f.Close()
		loc, err := client.PinFile(ctx, f.Name(), f)
		if err != nil {
			return WrapExitError(ExitFailure, "pinning failed", err)
		}
		locator = string(loc)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(PinResult{File: path, Locator: locator})
	}
	fmt.Fprintln(cmd.OutOrStdout(), locator)
	return nil
}
