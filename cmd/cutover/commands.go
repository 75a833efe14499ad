package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/pipeline"
	"github.com/artpar/cutover/internal/shell/store"
)

func newTabwriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// run
// =============================================================================

type runOpts struct {
	*rootOpts
	environment  string
	buildNumber  int64
	sourceDir    string
	reportFile   string
	reportFormat string
}

func newRunCmd(parent *rootOpts) *runOpts {
	return &runOpts{rootOpts: parent}
}

func (opts *runOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate, build, cut over and prune in one job",
		Example: strings.Join([]string{
			"  cutover run --env production",
			"  cutover run --env staging --build-number 42 --report out/last.yaml",
		}, "\n"),
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.environment, "env", "e", "", "environment whose configuration bundle is deployed")
	cmd.Flags().Int64Var(&opts.buildNumber, "build-number", 0, "build number to use; the next free one when 0")
	cmd.Flags().StringVar(&opts.sourceDir, "source", "", "source tree to build (overrides build.source_dir)")
	cmd.Flags().StringVar(&opts.reportFile, "report", "", "write the outcome to this file (overrides pipeline.report_file)")
	cmd.Flags().StringVar(&opts.reportFormat, "report-format", "", "outcome file format, yaml or json")
	return cmd
}

func (opts *runOpts) RunE(cmd *cobra.Command, _ []string) error {
	cfg := opts.config
	if opts.environment != "" {
		cfg.Environment.Default = opts.environment
	}
	if cfg.Environment.Default == "" {
		return &ExitError{Op: "run", Err: errors.New("no environment: pass --env or set environment.default"), ExitCode: ExitConfigError}
	}
	if opts.sourceDir != "" {
		cfg.Build.SourceDir = opts.sourceDir
	}
	if opts.reportFile != "" {
		cfg.Pipeline.ReportFile = opts.reportFile
	}
	if opts.reportFormat != "" {
		cfg.Pipeline.ReportFormat = opts.reportFormat
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := NewApp(ctx, cfg, opts.logger, opts.stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	outcome, err := app.controller.Run(ctx, pipeline.Request{
		Environment: cfg.Environment.Default,
		BuildNumber: opts.buildNumber,
	})
	if err != nil {
		var storeErr *store.StoreError
		if errors.As(err, &storeErr) {
			return &ExitError{Op: "run", Err: err, ExitCode: ExitStoreError}
		}
		return err
	}

	printOutcome(cmd.OutOrStdout(), outcome)
	if !outcome.Succeeded() {
		return &ExitError{
			Op:       "run",
			Err:      fmt.Errorf("deployment %d failed while %s (%s): %s", outcome.BuildNumber, outcome.FailureStage, outcome.FailureKind, outcome.FailureReason),
			ExitCode: ExitPipelineFailed,
		}
	}
	return nil
}

func printOutcome(w io.Writer, o domain.Outcome) {
	out := newTabwriter(w)
	fmt.Fprintln(out, "BUILD\tENVIRONMENT\tSTATUS\tCONTAINER\tPORT\tDURATION")
	fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%d\t%s\n", o.BuildNumber, o.Environment, o.Status, o.ContainerName, o.Port, o.Duration)
	out.Flush()

	for _, warning := range o.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if o.FailureReason != "" {
		fmt.Fprintf(w, "failure: %s\n", o.FailureReason)
		for _, line := range o.Logs {
			fmt.Fprintf(w, "  | %s\n", line)
		}
	}
}

// =============================================================================
// prune
// =============================================================================

type pruneOpts struct {
	*rootOpts
	keep int
}

func newPruneCmd(parent *rootOpts) *pruneOpts {
	return &pruneOpts{rootOpts: parent}
}

func (opts *pruneOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove all but the newest builds of the service",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
	cmd.Flags().IntVar(&opts.keep, "keep", 0, "number of builds to keep (overrides retention.keep)")
	return cmd
}

func (opts *pruneOpts) RunE(cmd *cobra.Command, _ []string) error {
	keep := opts.config.Retention.Keep
	if opts.keep > 0 {
		keep = opts.keep
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := NewApp(ctx, opts.config, opts.logger, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Prune(ctx, keep)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "kept:    %s\n", strings.Join(report.Kept, " "))
	fmt.Fprintf(w, "removed: %s\n", strings.Join(report.Removed, " "))
	if len(report.Failed) > 0 {
		fmt.Fprintf(w, "failed:  %s\n", strings.Join(report.Failed, " "))
	}
	for _, warning := range report.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

// =============================================================================
// history
// =============================================================================

type historyOpts struct {
	*rootOpts
	limit int
}

func newHistoryCmd(parent *rootOpts) *historyOpts {
	return &historyOpts{rootOpts: parent}
}

func (opts *historyOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deployment jobs",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "number of jobs to show")
	return cmd
}

func (opts *historyOpts) RunE(cmd *cobra.Command, _ []string) error {
	s, err := openStore(opts.config)
	if err != nil {
		return err
	}
	defer s.Close()

	jobs, err := s.ListJobs(cmd.Context(), store.ListOptions{Limit: opts.limit}.Normalize())
	if err != nil {
		return &ExitError{Op: "history", Err: err, ExitCode: ExitStoreError}
	}

	out := newTabwriter(cmd.OutOrStdout())
	fmt.Fprintln(out, "BUILD\tENVIRONMENT\tSTATUS\tARTIFACT\tSTARTED\tDURATION\tFAILURE")
	for _, job := range jobs {
		failure := ""
		if job.Failure != nil {
			failure = fmt.Sprintf("%s: %s", job.Failure.Kind, job.Failure.Message)
		}
		duration := "-"
		if job.FinishedAt != nil {
			duration = job.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.Environment, job.Status, dash(job.ArtifactTag),
			job.StartedAt.Format(time.RFC3339), duration, failure)
	}
	return out.Flush()
}

// =============================================================================
// artifacts
// =============================================================================

type artifactsOpts struct {
	*rootOpts
}

func newArtifactsCmd(parent *rootOpts) *artifactsOpts {
	return &artifactsOpts{rootOpts: parent}
}

func (opts *artifactsOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts",
		Short: "List recorded build artifacts of the service",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
}

func (opts *artifactsOpts) RunE(cmd *cobra.Command, _ []string) error {
	s, err := openStore(opts.config)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	service := opts.config.Service.Name

	artifacts, err := s.ListArtifacts(ctx, service, store.DefaultListOptions())
	if err != nil {
		return &ExitError{Op: "artifacts", Err: err, ExitCode: ExitStoreError}
	}

	latestTag := ""
	if latest, err := s.LatestArtifact(ctx, service); err == nil {
		latestTag = latest.Tag
	} else if !errors.Is(err, store.ErrNotFound) {
		return &ExitError{Op: "artifacts", Err: err, ExitCode: ExitStoreError}
	}

	out := newTabwriter(cmd.OutOrStdout())
	fmt.Fprintln(out, "TAG\tIMAGE\tCREATED\tLATEST")
	for _, a := range artifacts {
		marker := ""
		if a.Tag == latestTag {
			marker = "*"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", a.Tag, a.Image, a.CreatedAt.Format(time.RFC3339), marker)
	}
	return out.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
