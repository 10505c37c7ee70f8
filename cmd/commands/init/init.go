package initcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var withCompose bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a .env.example configuration template",
		Long:  `Generate a .env.example template in the current directory. Copy it to .env and fill in the values before deploying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateEnvExample(); err != nil {
				return err
			}
			fmt.Println("Successfully created .env.example")
			if withCompose {
				if err := generateComposeSample(); err != nil {
					return err
				}
				fmt.Println("Successfully created docker-compose.prod.yml")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withCompose, "compose", false, "also generate a sample docker-compose.prod.yml")
	return cmd
}

func generateEnvExample() error {
	if _, err := os.Stat(".env.example"); err == nil {
		return fmt.Errorf(".env.example already exists. Please remove it before running this command again")
	}

	envTemplate := `# compose-deploy configuration. Copy this file to .env and fill in the values.

# Required
DOCKER_REGISTRY=registry.example.com
DOCKER_IMAGE_NAME=my-app
DOMAIN=example.com
EMAIL=admin@example.com

# Image tag pushed to the registry and pulled on the host
# DOCKER_TAG=latest

# Remote host (required for deploy and setup)
DEPLOY_USER=deploy
DEPLOY_HOST=203.0.113.10
DEPLOY_PATH=/srv/my-app
# DEPLOY_PORT=22

# SSH auth: key file first, password as fallback
# SSH_KEY_PATH=~/.ssh/id_rsa
# SSH_PASSWORD=
# SSH_INSECURE_SKIP_HOST_KEY=false

# Compose
# COMPOSE_FILE=docker-compose.prod.yml
# WEB_SERVICE=web

# Used by setup to clone the source repository on the host
# GIT_REMOTE_URL=git@github.com:my-user/my-app.git

# Notifications
# SLACK_WEBHOOK_URL=
`

	return os.WriteFile(".env.example", []byte(envTemplate), 0644)
}

func generateComposeSample() error {
	if _, err := os.Stat("docker-compose.prod.yml"); err == nil {
		return fmt.Errorf("docker-compose.prod.yml already exists. Please remove it before running this command again")
	}

	composeTemplate := `services:
  web:
    image: ${DOCKER_REGISTRY}/${DOCKER_IMAGE_NAME}:${DOCKER_TAG}
    build: .
    command: gunicorn app.wsgi:application --bind 0.0.0.0:8000
    env_file: .env
    ports:
      - "8000:8000"
    depends_on:
      - db
  db:
    image: postgres:16-alpine
    env_file: .env
    volumes:
      - pgdata:/var/lib/postgresql/data
volumes:
  pgdata:
`

	return os.WriteFile("docker-compose.prod.yml", []byte(composeTemplate), 0644)
}
