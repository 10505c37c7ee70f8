package setup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-native/compose-deploy/cmd/config"
	"github.com/go-native/compose-deploy/cmd/remote"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Prepare the remote host for deployments",
		Long: `Prepare the remote host specified in .env.
This command will:
1. Connect to the host using SSH
2. Verify docker, docker compose and git are installed
3. Create the deploy path
4. Clone the source repository (GIT_REMOTE_URL) unless already present`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setupHost(cmd)
		},
	}
}

func setupHost(cmd *cobra.Command) error {
	settings := config.SettingsFrom(cmd.Context())

	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRemote(); err != nil {
		return err
	}

	sess, err := remote.Dial(cfg, settings.SSH.ConnectTimeout)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := remote.RunSteps(sess, remote.SetupSteps(cfg)); err != nil {
		return fmt.Errorf("failed to set up %s: %w", cfg.DeployHost, err)
	}

	fmt.Println("Setup completed successfully!")
	return nil
}
