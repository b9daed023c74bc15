/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	compareCmd "github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/compare"
	lapsCmd "github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/laps"
	sessionsCmd "github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/sessions"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/util"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/config"
	"github.com/mpapenbr/kartlog-telemetry-go/version"
)

const envPrefix = "KTM"

var (
	cfgFile       string
	stopTelemetry = func() {}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "ktm",
	Short:        "Kart telemetry lap comparison",
	Long:         `Compares the telemetry of up to five laps on a common distance grid.`,
	Version:      version.FullVersion,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx, logger, err := util.SetupLogger(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		logger.Debug("Config:",
			log.String("apiURL", config.APIURL),
			log.String("logLevel", config.LogLevel),
			log.String("logFilter", config.LogFilter),
			log.Bool("telemetry", config.EnableTelemetry))
		stopTelemetry = util.SetupTelemetry(ctx)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		stopTelemetry()
		//nolint:errcheck // stderr may not support sync
		log.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.ktm.yml)")

	rootCmd.PersistentFlags().StringVar(&config.APIURL, "api-url",
		"http://localhost:8000",
		"Base URL of the telemetry API")
	rootCmd.PersistentFlags().StringVar(&config.APIToken, "api-token",
		"",
		"Bearer token for the telemetry API")
	rootCmd.PersistentFlags().StringVar(&config.APITimeout, "api-timeout",
		"30s",
		"Timeout for a single API request")
	rootCmd.PersistentFlags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"0s",
		"Duration to wait for the telemetry API to be ready")
	rootCmd.PersistentFlags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat,
		"log-format",
		"text",
		"controls the log output format (json, text)")
	rootCmd.PersistentFlags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules, for example 'info+:* debug:*,-*.cache'")
	rootCmd.PersistentFlags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	rootCmd.PersistentFlags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (use 'stdout' for console)")

	// add commands here
	rootCmd.AddCommand(sessionsCmd.NewSessionsCmd())
	rootCmd.AddCommand(lapsCmd.NewLapsCmd())
	rootCmd.AddCommand(compareCmd.NewCompareCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".ktm" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ktm")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindFlags(rootCmd, viper.GetViper())
	for _, cmd := range rootCmd.Commands() {
		bindFlags(cmd, viper.GetViper())
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --api-url to KTM_API_URL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
