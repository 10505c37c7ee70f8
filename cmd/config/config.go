// Package config loads and validates the per-project deployment
// configuration from a .env file in the working directory. The file is
// parsed into an explicit Config value; nothing is written into the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is the configuration file read by deploy, check and setup.
const DefaultEnvFile = ".env"

// DefaultTag is applied when DOCKER_TAG is not set.
const DefaultTag = "latest"

var (
	// ErrMissing is returned when the configuration file does not exist.
	ErrMissing = errors.New("configuration file not found")

	// ErrInvalid is the sentinel wrapped by every KeyError.
	ErrInvalid = errors.New("configuration invalid")
)

// KeyError reports a required configuration key that is absent or empty.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("required key %s is missing or empty", e.Key)
}

func (e *KeyError) Unwrap() error {
	return ErrInvalid
}

// requiredKeys are checked in this order; the first missing key fails the run.
var requiredKeys = []string{
	"DOCKER_REGISTRY",
	"DOCKER_IMAGE_NAME",
	"DOMAIN",
	"EMAIL",
}

// Config is the deployment configuration for one invocation. It is
// loaded once, never mutated, and discarded at process exit.
type Config struct {
	Registry  string
	ImageName string
	Domain    string
	Email     string
	Tag       string

	DeployUser string
	DeployHost string
	DeployPath string
	DeployPort uint

	SSHKeyPath             string
	SSHPassword            string
	SSHInsecureSkipHostKey bool

	ComposeFile string
	WebService  string

	GitRemoteURL    string
	SlackWebhookURL string
}

// Load reads and validates the configuration file at path.
//
// A missing file returns ErrMissing. Required keys are checked in a
// fixed order before anything else happens; the first absent or empty
// key returns a KeyError naming it. Comment lines and blank lines are
// ignored by the parser.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s (run `compose-deploy init` and copy .env.example to %s)", ErrMissing, path, path)
	}

	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}

	for _, key := range requiredKeys {
		if strings.TrimSpace(vals[key]) == "" {
			return nil, &KeyError{Key: key}
		}
	}

	cfg := &Config{
		Registry:  vals["DOCKER_REGISTRY"],
		ImageName: vals["DOCKER_IMAGE_NAME"],
		Domain:    vals["DOMAIN"],
		Email:     vals["EMAIL"],
		Tag:       vals["DOCKER_TAG"],

		DeployUser: vals["DEPLOY_USER"],
		DeployHost: vals["DEPLOY_HOST"],
		DeployPath: vals["DEPLOY_PATH"],
		DeployPort: 22,

		SSHKeyPath:  vals["SSH_KEY_PATH"],
		SSHPassword: vals["SSH_PASSWORD"],

		ComposeFile: vals["COMPOSE_FILE"],
		WebService:  vals["WEB_SERVICE"],

		GitRemoteURL:    vals["GIT_REMOTE_URL"],
		SlackWebhookURL: vals["SLACK_WEBHOOK_URL"],
	}

	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	if cfg.ComposeFile == "" {
		cfg.ComposeFile = "docker-compose.prod.yml"
	}
	if cfg.WebService == "" {
		cfg.WebService = "web"
	}
	if cfg.SSHKeyPath == "" {
		cfg.SSHKeyPath = "~/.ssh/id_rsa"
	}

	if v := vals["DEPLOY_PORT"]; v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: DEPLOY_PORT must be a port number, got %q", ErrInvalid, v)
		}
		cfg.DeployPort = uint(port)
	}
	if v := vals["SSH_INSECURE_SKIP_HOST_KEY"]; v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: SSH_INSECURE_SKIP_HOST_KEY must be a boolean, got %q", ErrInvalid, v)
		}
		cfg.SSHInsecureSkipHostKey = skip
	}

	return cfg, nil
}

// ValidateRemote checks the keys the remote stage needs. They are
// required only when that stage runs, so they are not part of Load's
// up-front validation.
func (c *Config) ValidateRemote() error {
	if strings.TrimSpace(c.DeployUser) == "" {
		return &KeyError{Key: "DEPLOY_USER"}
	}
	if strings.TrimSpace(c.DeployHost) == "" {
		return &KeyError{Key: "DEPLOY_HOST"}
	}
	if strings.TrimSpace(c.DeployPath) == "" {
		return &KeyError{Key: "DEPLOY_PATH"}
	}
	return nil
}

// LocalImage returns the tag-qualified local reference, e.g. "libsys:latest".
// The local side carries the same tag as the registry side so that
// `docker tag` always renames an image that actually exists.
func (c *Config) LocalImage() string {
	return fmt.Sprintf("%s:%s", c.ImageName, c.Tag)
}

// RemoteImage returns the registry-qualified reference,
// e.g. "reg.example.com/libsys:latest".
func (c *Config) RemoteImage() string {
	return fmt.Sprintf("%s/%s:%s", c.Registry, c.ImageName, c.Tag)
}

// BuildEnv returns the resolved deployment variables handed to the
// compose build command's environment, so the compose file can
// interpolate them without the process environment being mutated.
func (c *Config) BuildEnv() []string {
	return []string{
		"DOCKER_REGISTRY=" + c.Registry,
		"DOCKER_IMAGE_NAME=" + c.ImageName,
		"DOCKER_TAG=" + c.Tag,
		"DOMAIN=" + c.Domain,
		"EMAIL=" + c.Email,
	}
}
