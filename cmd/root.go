package cmd

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-native/compose-deploy/cmd/commands/check"
	"github.com/go-native/compose-deploy/cmd/commands/deploy"
	"github.com/go-native/compose-deploy/cmd/commands/history"
	initcmd "github.com/go-native/compose-deploy/cmd/commands/init"
	"github.com/go-native/compose-deploy/cmd/commands/setup"
	"github.com/go-native/compose-deploy/cmd/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "compose-deploy",
	Short: "Deploy Docker Compose applications to a single remote host",
	Long: `compose-deploy is a CLI tool that ships a Docker Compose application
to a single remote host over SSH. It automates the release workflow:

- Building, tagging and pushing the production image
- Remote host setup (docker, compose, git, source checkout)
- Fail-fast remote deployment with migrations and static collection
- Release history and optional Slack notifications`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadSettings(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			settings.Log.Level = "debug"
		}
		setupLogger(settings)
		cmd.SetContext(config.WithSettings(cmd.Context(), settings))
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "tool settings file (default none; COMPOSE_DEPLOY_* env vars apply)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initcmd.NewCommand())
	rootCmd.AddCommand(setup.NewCommand())
	rootCmd.AddCommand(deploy.NewCommand())
	rootCmd.AddCommand(check.NewCommand())
	rootCmd.AddCommand(history.NewCommand())
}

func setupLogger(settings *config.Settings) {
	level, err := log.ParseLevel(strings.ToLower(settings.Log.Level))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if settings.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{})
	}
}
