package check

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-native/compose-deploy/cmd/compose"
	"github.com/go-native/compose-deploy/cmd/config"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration without deploying",
		Long:  `Load and validate .env, run the compose preflight, and print the resolved image references. No side effects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}
}

func runCheck() error {
	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return err
	}

	if err := compose.Preflight(cfg.ComposeFile, cfg.WebService); err != nil {
		return err
	}

	fmt.Printf("local image:   %s\n", cfg.LocalImage())
	fmt.Printf("remote image:  %s\n", cfg.RemoteImage())
	fmt.Printf("compose file:  %s (service %q)\n", cfg.ComposeFile, cfg.WebService)

	if err := cfg.ValidateRemote(); err != nil {
		fmt.Printf("remote stage:  not configured (%v); deploy needs --skip-remote\n", err)
	} else {
		fmt.Printf("remote stage:  %s@%s:%s\n", cfg.DeployUser, cfg.DeployHost, cfg.DeployPath)
	}

	fmt.Println("Configuration OK")
	return nil
}
