package deploy

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-native/compose-deploy/cmd/config"
	"github.com/go-native/compose-deploy/cmd/docker"
	"github.com/go-native/compose-deploy/cmd/gitmeta"
	"github.com/go-native/compose-deploy/cmd/notify"
	"github.com/go-native/compose-deploy/cmd/pipeline"
	"github.com/go-native/compose-deploy/cmd/remote"
	"github.com/go-native/compose-deploy/cmd/store"
)

func NewCommand() *cobra.Command {
	var skipRemote bool
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, push and deploy the application",
		Long: `Deploy the application to the remote host.

Reads .env from the working directory, builds the production image,
tags and pushes it to the registry, then runs the remote deployment
sequence over SSH: pull source, restart services with the new image,
apply migrations, collect static files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, skipRemote)
		},
	}
	cmd.Flags().BoolVar(&skipRemote, "skip-remote", false, "stop after pushing the image; skip the remote deployment stage")
	return cmd
}

func runDeploy(cmd *cobra.Command, skipRemote bool) error {
	settings := config.SettingsFrom(cmd.Context())

	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Config: cfg,
		Runner: docker.ExecRunner{},
		Dial: func(cfg *config.Config) (remote.Session, error) {
			return remote.Dial(cfg, settings.SSH.ConnectTimeout)
		},
		SkipRemote: skipRemote,
	}

	if st, err := store.Open(settings.History.Path); err != nil {
		log.WithError(err).Warn("release history unavailable")
	} else {
		defer st.Close()
		p.History = st
	}

	if info, err := gitmeta.Resolve("."); err != nil {
		log.WithError(err).Debug("no git metadata for this release")
	} else {
		p.Git = info
	}

	if cfg.SlackWebhookURL != "" {
		p.Notifier = &notify.SlackNotifier{WebhookURL: cfg.SlackWebhookURL}
	}

	return p.Run()
}
