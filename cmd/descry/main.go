package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/archivist-descry/descry/internal/config"
	"github.com/archivist-descry/descry/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "descry",
	Short: "Drive document scanners and inspect scan jobs",
	Long: `descry enumerates scanners through a backend, reads and sets their options,
runs scans and writes the acquired pages to disk. Scan jobs are audited to a
local sqlite database and, when configured, mirrored to a Feishu bitable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if rootEnvFile != "" {
			if err := env.Load(rootEnvFile); err != nil {
				return err
			}
		}
		return applyLogLevel(firstNonEmpty(rootLogLevel, config.String(config.EnvLogLevel, "info")))
	},
}

var (
	rootLogLevel string
	rootProfile  string
	rootEnvFile  string
	rootDBPath   string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (default from DESCRY_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&rootProfile, "profile", "", "Virtual backend TOML profile (default from DESCRY_BACKEND_PROFILE or the embedded profile)")
	rootCmd.PersistentFlags().StringVar(&rootEnvFile, "env-file", "", "Extra .env file to load before reading settings")
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "Audit sqlite path (default from DESCRY_DB_PATH; empty disables auditing)")
	rootCmd.AddCommand(
		newDevicesCmd(),
		newOptionsCmd(),
		newParamsCmd(),
		newScanCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	_ = env.Ensure()
}

func applyLogLevel(raw string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return err
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("descry command failed")
	}
}
