package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"neurodrive/internal/log"
	"neurodrive/pkg/neurodrive"
)

const envPrefix = "NEURODRIVE"

type rootOptions struct {
	cfgFile    string
	logLevel   string
	logFormat  string
	logFilter  string
	store      string
	storePath  string
	runsDir    string
	exportsDir string

	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "neurodrivectl",
		Short:         "Evolve neural network drivers on racing tracks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			initConfig(v, opts.cfgFile)
			bindFlags(cmd, v)
			logger, err := log.New(cmd.ErrOrStderr(), log.Config{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Filter: opts.logFilter,
			})
			if err != nil {
				return err
			}
			log.ResetDefault(logger)
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"config file (default is $HOME/.neurodrive.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info",
		"log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", log.FormatAuto,
		"log format: auto|console|json")
	rootCmd.PersistentFlags().StringVar(&opts.logFilter, "log-filter", "",
		"zapfilter rules, e.g. \"debug:evo info+:*\"")
	rootCmd.PersistentFlags().StringVar(&opts.store, "store", "sqlite",
		"store backend: memory|sqlite|file")
	rootCmd.PersistentFlags().StringVar(&opts.storePath, "store-path", "neurodrive.db",
		"sqlite database file or file store directory")
	rootCmd.PersistentFlags().StringVar(&opts.runsDir, "runs-dir", "runs",
		"directory holding run artifacts")
	rootCmd.PersistentFlags().StringVar(&opts.exportsDir, "exports-dir", "exports",
		"directory exports are written to")

	rootCmd.AddCommand(newTrainCmd(opts))
	rootCmd.AddCommand(newEvaluateCmd(opts))
	rootCmd.AddCommand(newRunsCmd(opts))
	rootCmd.AddCommand(newFitnessCmd(opts))
	rootCmd.AddCommand(newDiagnosticsCmd(opts))
	rootCmd.AddCommand(newLineageCmd(opts))
	rootCmd.AddCommand(newTopCmd(opts))
	rootCmd.AddCommand(newSummaryCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))
	rootCmd.AddCommand(newGenomesCmd(opts))
	rootCmd.AddCommand(newTracksCmd(opts))
	return rootCmd
}

func (o *rootOptions) client() (*neurodrive.Client, error) {
	return neurodrive.New(neurodrive.Options{
		StoreKind:  o.store,
		StorePath:  o.storePath,
		RunsDir:    o.runsDir,
		ExportsDir: o.exportsDir,
		Logger:     o.logger,
	})
}

// initConfig reads in config file and ENV variables if set.
func initConfig(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".neurodrive")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
}

// bindFlags applies config file and environment values to every flag the
// command line left unset.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v\n", f.Name, err)
			}
		}
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not set flag value for %s: %v\n", f.Name, err)
			}
		}
	})
}
