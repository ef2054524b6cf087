package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iamlens/iamlens/internal/logs"
	"github.com/iamlens/iamlens/internal/message"
	"github.com/iamlens/iamlens/pkg/collectstore"
)

var (
	collectConfigsFlag []string
	partitionFlag      string
	logLevelFlag       string
	quietFlag          bool
	noColorFlag        bool
	silentFlag         bool
)

var rootCmd = &cobra.Command{
	Use:   "iamlens",
	Short: "iamlens answers what-if questions about AWS IAM authorization.",
}

// Execute runs the root command, exiting the process with status 1 on any
// command error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringSliceVar(&collectConfigsFlag, "collectConfigs", []string{"./iam-collect.jsonc"}, "path to an iam-collect snapshot (repeatable)")
	rootCmd.PersistentFlags().StringVar(&partitionFlag, "partition", "aws", "AWS partition")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "none", "log level (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress user messages")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&silentFlag, "silent", false, "suppress all messages except critical errors")

	viper.BindPFlag("collectConfigs", rootCmd.PersistentFlags().Lookup("collectConfigs"))
	viper.BindPFlag("partition", rootCmd.PersistentFlags().Lookup("partition"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	viper.SetEnvPrefix("IAM_LENS")
	viper.AutomaticEnv()

	logs.ConfigureDefaults(viperOrFlag("log-level", logLevelFlag))
	message.SetQuiet(quietFlag)
	message.SetNoColor(noColorFlag)
	message.SetSilent(silentFlag)
	message.Banner()
}

// viperOrFlag prefers an explicitly bound viper value (env var or flag)
// over the flag variable's zero value, so IAM_LENS_LOG_LEVEL works without
// requiring the flag to be passed.
func viperOrFlag(key, flagValue string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return flagValue
}

// loadStore merges every --collectConfigs snapshot into a single Client.
func loadStore() (*collectstore.Client, error) {
	paths := collectConfigsFlag
	if v := viper.GetStringSlice("collectConfigs"); len(v) > 0 {
		paths = v
	}

	clients := make([]*collectstore.Client, 0, len(paths))
	for _, path := range paths {
		c, err := collectstore.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		clients = append(clients, c)
	}
	return collectstore.Merge(clients...), nil
}
