// Package docker drives the docker CLI for the build, tag and push
// stages. Registry credentials are the CLI's business (docker login);
// the orchestrator never handles them.
package docker

import (
	"os"
	"os/exec"

	"github.com/go-native/compose-deploy/cmd/config"
)

// Runner executes one external command with output streamed through to
// the operator. The extra environment is appended to the process
// environment for that command only.
type Runner interface {
	Run(env []string, name string, args ...string) error
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(env []string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Build runs `docker compose build` against the production compose
// file, with the resolved deployment variables on the command's
// environment so the file's interpolations see them.
func Build(r Runner, cfg *config.Config) error {
	return r.Run(cfg.BuildEnv(), "docker", "compose", "-f", cfg.ComposeFile, "build")
}

// Tag applies the registry-qualified tag to the freshly built image.
// Both references carry the resolved tag, so the source always names
// the image Build produced.
func Tag(r Runner, cfg *config.Config) error {
	return r.Run(nil, "docker", "tag", cfg.LocalImage(), cfg.RemoteImage())
}

// Push publishes the tagged image to the configured registry.
func Push(r Runner, cfg *config.Config) error {
	return r.Run(nil, "docker", "push", cfg.RemoteImage())
}
