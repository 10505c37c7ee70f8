// Package remote runs ordered command sequences on the deployment host
// over SSH. Every sequence is fail-fast: the first non-zero command
// aborts the session and its failure carries the step name and the
// remote output.
package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-native/compose-deploy/cmd/config"
	"github.com/melbahja/goph"
	"golang.org/x/crypto/ssh"
)

// Step is one named remote command.
type Step struct {
	Name    string
	Command string
}

// StepError reports a failed remote step with whatever output the
// remote session produced.
type StepError struct {
	Step   string
	Output string
	Err    error
}

func (e *StepError) Error() string {
	if out := strings.TrimSpace(e.Output); out != "" {
		return fmt.Sprintf("step %q: %v\n%s", e.Step, e.Err, out)
	}
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Session runs commands on the remote host.
type Session interface {
	Run(command string) ([]byte, error)
	Close() error
}

// Dial opens an SSH session to DEPLOY_USER@DEPLOY_HOST. Auth is the
// configured key file (with ~ expansion), falling back to the password
// when no key file exists. Host keys are verified against known_hosts
// unless the insecure opt-out is set.
func Dial(cfg *config.Config, timeout time.Duration) (Session, error) {
	auth, err := authFor(cfg)
	if err != nil {
		return nil, err
	}

	callback := ssh.InsecureIgnoreHostKey()
	if !cfg.SSHInsecureSkipHostKey {
		callback, err = goph.DefaultKnownHosts()
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %v", err)
		}
	}

	client, err := goph.NewConn(&goph.Config{
		Auth:     auth,
		User:     cfg.DeployUser,
		Addr:     cfg.DeployHost,
		Port:     cfg.DeployPort,
		Timeout:  timeout,
		Callback: callback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s@%s: %v", cfg.DeployUser, cfg.DeployHost, err)
	}

	return client, nil
}

func authFor(cfg *config.Config) (goph.Auth, error) {
	keyPath := expandHome(cfg.SSHKeyPath)
	if _, err := os.Stat(keyPath); err == nil {
		auth, err := goph.Key(keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to setup SSH key auth: %v", err)
		}
		return auth, nil
	}
	if cfg.SSHPassword != "" {
		return goph.Password(cfg.SSHPassword), nil
	}
	return nil, fmt.Errorf("no SSH key at %s and no SSH_PASSWORD set", keyPath)
}

func expandHome(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}

// DeploySteps is the ordered remote deployment sequence. Every command
// runs in the deploy path.
func DeploySteps(cfg *config.Config) []Step {
	compose := "docker compose -f " + cfg.ComposeFile
	web := cfg.WebService
	return []Step{
		{Name: "pull source", Command: inPath(cfg.DeployPath, "git pull")},
		{Name: "stop services", Command: inPath(cfg.DeployPath, compose+" down")},
		{Name: "pull image", Command: inPath(cfg.DeployPath, compose+" pull")},
		{Name: "start services", Command: inPath(cfg.DeployPath, compose+" up -d")},
		{Name: "wait for database", Command: inPath(cfg.DeployPath, compose+" exec -T "+web+" python manage.py wait_for_db")},
		{Name: "apply migrations", Command: inPath(cfg.DeployPath, compose+" exec -T "+web+" python manage.py migrate")},
		{Name: "collect static files", Command: inPath(cfg.DeployPath, compose+" exec -T "+web+" python manage.py collectstatic --noinput")},
		{Name: "restart web service", Command: inPath(cfg.DeployPath, compose+" restart "+web)},
	}
}

// SetupSteps is the one-time host bootstrap sequence: verify the tools
// the deploy sequence needs, create the deploy path, clone the source.
func SetupSteps(cfg *config.Config) []Step {
	steps := []Step{
		{Name: "check docker", Command: "command -v docker"},
		{Name: "check docker compose", Command: "docker compose version"},
		{Name: "check git", Command: "command -v git"},
		{Name: "create deploy path", Command: "mkdir -p " + cfg.DeployPath},
	}
	if cfg.GitRemoteURL != "" {
		steps = append(steps, Step{
			Name:    "clone repository",
			Command: fmt.Sprintf("test -d %s/.git || git clone %s %s", cfg.DeployPath, cfg.GitRemoteURL, cfg.DeployPath),
		})
	}
	return steps
}

func inPath(path, command string) string {
	return "cd " + path + " && " + command
}

// RunSteps executes steps in order on sess, aborting at the first
// failure.
func RunSteps(sess Session, steps []Step) error {
	for _, step := range steps {
		log.WithField("step", step.Name).Info("running remote step")
		output, err := sess.Run(step.Command)
		if len(output) > 0 {
			fmt.Print(string(output))
		}
		if err != nil {
			return &StepError{Step: step.Name, Output: string(output), Err: err}
		}
	}
	return nil
}
