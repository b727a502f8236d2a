package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/winops/lgpo/internal/lgpo"
	"github.com/winops/lgpo/internal/winsys"
)

var rootCmd = &cobra.Command{
	Use:   "lgpo",
	Short: "Edit Windows local Group Policy",
	Long: "lgpo reads and writes local Group Policy: account and audit policy,\n" +
		"user rights, security options and Administrative Template policies.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd.PersistentFlags().String("definitions", "", "ADMX definitions folder (default %SystemRoot%\\PolicyDefinitions)")
	rootCmd.PersistentFlags().String("language", "en-US", "ADML language code")
	rootCmd.PersistentFlags().String("work-dir", "", "scratch folder for secedit temp files")
	rootCmd.PersistentFlags().Bool("user", false, "operate on user policy instead of machine policy")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: error, warn, info, debug")
	viper.BindPFlag("definitions", rootCmd.PersistentFlags().Lookup("definitions"))
	viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("language"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("LGPO")
	viper.AutomaticEnv()
}

func initLogger() {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
}

func machineClass() bool {
	return !viper.GetBool("user")
}

func newEngine(cumulativeRights bool) (*lgpo.Engine, error) {
	backends, err := winsys.SystemBackends()
	if err != nil {
		return nil, err
	}
	defsDir := viper.GetString("definitions")
	if defsDir == "" {
		if root := os.Getenv("SystemRoot"); root != "" {
			defsDir = filepath.Join(root, "PolicyDefinitions")
		}
	}
	return lgpo.New(lgpo.Config{
		Registry:         backends.Registry,
		Rights:           backends.Rights,
		Modals:           backends.Modals,
		Accounts:         backends.Accounts,
		Runner:           backends.Runner,
		Notifier:         backends.Notifier,
		DefinitionsDir:   defsDir,
		Language:         viper.GetString("language"),
		WorkDir:          viper.GetString("work-dir"),
		CumulativeRights: cumulativeRights,
	}), nil
}
