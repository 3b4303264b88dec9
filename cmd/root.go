package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdetect/pdetect-go/cmd/preview"
	"github.com/pdetect/pdetect-go/cmd/run"
	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pdetect",
		Short: "Person detection pipeline CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		run.Command(settings),
		preview.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Init(settings.Debug)
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.RunName, "run-name", viper.GetString("runname"), "Human friendly name for the run")
	rootCmd.PersistentFlags().StringVar(&settings.JobID, "job-id", viper.GetString("jobid"), "Job id for scheduler tracking")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
