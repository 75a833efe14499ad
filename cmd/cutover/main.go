package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/cutover/internal/core/domain"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRoot(stdout, stderr)
	cmd := root.Command()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		code := exitCode(err)
		if root.logger != nil {
			root.logger.Error("command failed", "error", err, "exit_code", code)
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return code
	}
	return ExitSuccess
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.ExitCode
	case errors.Is(err, domain.ErrLockContention):
		return ExitLockContention
	case errors.Is(err, domain.ErrStaleBuildNumber):
		return ExitConfigError
	default:
		return ExitPipelineFailed
	}
}

// =============================================================================
// Root Command
// =============================================================================

type rootOpts struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	config *Config
	logger *slog.Logger
}

func newRoot(stdout, stderr io.Writer) *rootOpts {
	return &rootOpts{stdout: stdout, stderr: stderr}
}

var rootLongHelp = strings.TrimSpace(`
cutover builds a service image and swaps it into its slot on this host.

Workflow:
  cutover run --env production   # validate, build, cut over, prune
  cutover history                # what ran, and how it ended
  cutover artifacts              # which builds are still around
  cutover serve                  # accept deployments over HTTP
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "cutover",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to config file; every key can also be set as CUTOVER_<SECTION>_<KEY>")

	cmd.AddCommand(
		newRunCmd(opts).Command(),
		newPruneCmd(opts).Command(),
		newHistoryCmd(opts).Command(),
		newArtifactsCmd(opts).Command(),
		newServeCmd(opts).Command(),
		newVersionCommand(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return &ExitError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}
	opts.config = cfg
	// Logs go to stderr so command output stays parseable.
	opts.logger = SetupLogger(cfg, opts.stderr)
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Output the version of cutover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cutover %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}
