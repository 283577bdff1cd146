package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"churncli/internal/config"
	"churncli/internal/operations"
	"churncli/internal/samplegen"
	"churncli/pkg/contracts"
)

// stepCommands are the single-step subcommands, in run order
var stepCommands = []struct {
	id    string
	short string
}{
	{operations.StepIDExtract, "Fetch student ids and attendance from the LMS"},
	{operations.StepIDBuildDB, "Rebuild the lost clients database"},
	{operations.StepIDExportReport, "Export the joined lost clients report"},
	{operations.StepIDPrepare, "Add course cost, salary and loss to the report"},
	{operations.StepIDAnalyze, "Per-year teacher loss statistics and categories"},
	{operations.StepIDFeatures, "Teacher KPI rates, loss counts and importance"},
	{operations.StepIDCompare, "Mann-Whitney and descriptive comparison of teacher cohorts"},
	{operations.StepIDFinance, "Financial losses per period and bonus growth"},
	{operations.StepIDModelBonus, "Bonus variants and the targets classifier"},
	{operations.StepIDModelEffects, "Logistic effect of the bonus and of reached targets"},
	{operations.StepIDModelShap, "Random forest regression with Shapley attributions"},
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Churn analytics pipeline for the tutoring school",
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate(contracts.GetFullVersionString() + "\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "config file (default config.yaml when present)")
	pf.StringVar(&flags.dataDir, "data-dir", config.DefaultDataDir, "directory of input and output tables")
	pf.StringVar(&flags.imagesDir, "images-dir", config.DefaultImagesDir, "directory of charts")
	pf.StringVar(&flags.logsDir, "logs-dir", config.DefaultLogsDir, "directory of logs, run manifest and metrics")
	pf.StringVar(&flags.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.BoolVar(&flags.continueOnError, "continue-on-error", false, "keep running independent steps after a failure")
	pf.BoolVar(&flags.noCharts, "no-charts", false, "skip chart rendering")
	pf.BoolVar(&flags.noWorkbook, "no-workbook", false, "do not write the results workbook")
	pf.IntVar(&flags.workers, "workers", config.DefaultLMSWorkers, "concurrent LMS rows during extract")

	for _, sc := range stepCommands {
		id := sc.id
		root.AddCommand(&cobra.Command{
			Use:   id,
			Short: sc.short,
			Args:  cobra.NoArgs,
			RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
				return a.runSteps(ctx, []string{id})
			}),
		})
	}

	root.AddCommand(newRunCmd(flags), newSampleCmd(flags), newStepsCmd(flags))
	return root
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var steps []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline in dependency order",
		Long: `Run every step in dependency order. Without LMS credentials the extract
step keeps the existing attendance file. A failed step marks its dependents
skipped and stops the run unless --continue-on-error is set.`,
		Args: cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			return a.runSteps(ctx, steps)
		}),
	}
	cmd.Flags().StringSliceVar(&steps, "steps", nil, "run only these steps (comma separated)")
	return cmd
}

func newSampleCmd(flags *globalFlags) *cobra.Command {
	opts := samplegen.DefaultOptions()
	var seedSet bool
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a synthetic data directory for dry runs",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			if !seedSet {
				opts.Seed = a.cfg.Run.Seed
			}
			res, err := samplegen.NewGenerator(a.env, opts).Run(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(res.Files))
			for _, f := range res.Files {
				rows = append(rows, []string{f})
			}
			renderFiles(a.out, rows)
			fmt.Fprintf(a.out, "%d students, %d teachers, %d groups, %d KPI rows\n",
				res.Students, res.Teachers, res.Groups, res.KPIRows)
			return nil
		}),
	}
	f := cmd.Flags()
	f.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed (default from run.seed)")
	f.IntVar(&opts.Teachers, "teachers", opts.Teachers, "number of teachers")
	f.IntVar(&opts.Groups, "groups", opts.Groups, "number of groups")
	f.IntVar(&opts.Students, "students", opts.Students, "number of lost students")
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		seedSet = cmd.Flags().Changed("seed")
	}
	return cmd
}

func newStepsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the pipeline steps and their dependencies",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			manager, err := a.pipeline()
			if err != nil {
				return err
			}
			return renderSteps(a.out, manager.GetRegistry())
		}),
	}
}

// withApp wires configuration, logging and telemetry around fn
func withApp(flags *globalFlags, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flags, cmd.Flags().Changed)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		defer a.close(ctx)
		return fn(ctx, a, args)
	}
}
