package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"symptomsim/adapters/report"
	"symptomsim/domain/run"
	"symptomsim/domain/symptom"
	"symptomsim/internal/config"
	"symptomsim/internal/container"
	"symptomsim/internal/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// reportBaseName is the file name, without extension, of every written report
const reportBaseName = "symptom_combinations"

func main() {
	// A missing .env file is fine; the environment and defaults still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %v\n", errors.GetCode(err), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "symptomsim",
		Short:         "Monte Carlo estimates of symptom combination probabilities among diagnosed cases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newCombinationsCmd(&configPath),
		newConfigCmd(&configPath),
	)
	return rootCmd
}

// overrides are command line values that win over file and environment
type overrides struct {
	population  int
	replicates  int
	seed        int64
	threshold   float64
	minCriteria int
	workers     int
	estimator   string
	formats     []string
	outDir      string
	logLevel    string
}

func (o *overrides) register(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().IntVarP(&o.population, "population", "n", d.Population, "Individuals per replicate")
	cmd.Flags().IntVarP(&o.replicates, "replicates", "r", d.Replicates, "Number of replicates")
	cmd.Flags().Int64Var(&o.seed, "seed", d.Seed, "Base random seed")
	cmd.Flags().Float64Var(&o.threshold, "threshold", d.Threshold, "Positivity threshold on the rescaled indicators")
	cmd.Flags().IntVarP(&o.minCriteria, "min-criteria", "k", d.MinCriteria, "Positive indicators required for a diagnosis")
	cmd.Flags().IntVar(&o.workers, "workers", d.Workers, "Replicates run in parallel")
	cmd.Flags().StringVar(&o.estimator, "estimator", d.Estimator.Backend, "Orthant estimator: genz|montecarlo")
	cmd.Flags().StringSliceVarP(&o.formats, "format", "f", d.Output.Formats, "Report formats: text,csv,markdown,html,xlsx,png,svg,pdf")
	cmd.Flags().StringVarP(&o.outDir, "out", "o", d.Output.Dir, "Directory for file reports")
	cmd.Flags().StringVar(&o.logLevel, "log-level", d.LogLevel, "ERROR|WARN|INFO|DEBUG|TRACE")
}

// apply copies every flag the user set onto cfg
func (o *overrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("population") {
		cfg.Population = o.population
	}
	if flags.Changed("replicates") {
		cfg.Replicates = o.replicates
	}
	if flags.Changed("seed") {
		cfg.Seed = o.seed
	}
	if flags.Changed("threshold") {
		cfg.Threshold = o.threshold
	}
	if flags.Changed("min-criteria") {
		cfg.MinCriteria = o.minCriteria
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("estimator") {
		cfg.Estimator.Backend = o.estimator
	}
	if flags.Changed("format") {
		cfg.Output.Formats = o.formats
	}
	if flags.Changed("out") {
		cfg.Output.Dir = o.outDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
}

func loadConfig(cmd *cobra.Command, path string, o *overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o != nil {
		o.apply(cmd, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunCmd(configPath *string) *cobra.Command {
	var o overrides
	var all bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate replicates and report combination probabilities",
		Long: `Simulate R populations, diagnose cases with a k-of-n rule, fit a
multivariate normal to each case sample and integrate it over every symptom
combination. Results are averaged over replicates and ranked.

Precedence: flags > --config file > SYMPTOMSIM_* environment (.env is loaded) > defaults.

Example: symptomsim run -n 1000 -r 100 --seed 123 -f text,csv,png -o out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath, &o)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd, cfg, all)
		},
	}
	o.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Print all combinations in the text report, not only those meeting criteria")
	return cmd
}

func runSimulation(ctx context.Context, cmd *cobra.Command, cfg *config.Config, all bool) error {
	c, err := container.New(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	result, err := c.Simulation.Run(ctx)
	if err != nil {
		return err
	}

	for _, format := range cfg.Output.Formats {
		if format == report.FormatText {
			w, err := c.ReportWriter(format, cmd.OutOrStdout(), all)
			if err != nil {
				return err
			}
			if err := w.Write(ctx, result); err != nil {
				return err
			}
			continue
		}
		path, err := writeReportFile(ctx, c, format, result)
		if err != nil {
			return err
		}
		c.Logger.With("report").Info("wrote %s report to %s", format, path)
	}
	return nil
}

func writeReportFile(ctx context.Context, c *container.Container, format string, result *run.Report) (string, error) {
	dir := c.Config.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.ReportError("failed to create output directory", err)
	}
	path := filepath.Join(dir, reportBaseName+report.Extension(format))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.ReportError("failed to create report file", err)
	}
	defer f.Close()

	w, err := c.ReportWriter(format, f, true)
	if err != nil {
		return "", err
	}
	if err := w.Write(ctx, result); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.ReportError("failed to close report file", err)
	}
	return path, nil
}

func newCombinationsCmd(configPath *string) *cobra.Command {
	var minCriteria int

	cmd := &cobra.Command{
		Use:   "combinations",
		Short: "List every symptom combination and whether it meets the diagnostic criteria",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath, nil)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("min-criteria") {
				cfg.MinCriteria = minCriteria
			}
			rule := symptom.DiagnosticRule{MinCriteria: cfg.MinCriteria, Total: len(cfg.Indicators)}
			if err := rule.Validate(); err != nil {
				return errors.WithCode(errors.CodeConfigInvalid, err)
			}
			names := symptom.Names(cfg.Indicators)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "INDEX\tCOMBINATION\tSYMPTOMS\tCOUNT\tMEETS %s\n", rule)
			met := 0
			for _, p := range symptom.Enumerate(len(names)) {
				meets := rule.MeetsCriteria(p)
				if meets {
					met++
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", p.Index, p.Label(), p.Describe(names), p.Count(), meets)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d combinations meet %s\n", met, 1<<len(names), rule)
			return nil
		},
	}
	cmd.Flags().IntVarP(&minCriteria, "min-criteria", "k", 2, "Positive indicators required for a diagnosis")
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
