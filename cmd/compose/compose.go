// Package compose implements the preflight check on the production
// compose file. The file's full semantics belong to docker compose; the
// preflight only proves the file exists and defines the web service
// before any build side effect happens.
package compose

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

var (
	// ErrFileMissing is returned when the compose file does not exist.
	ErrFileMissing = errors.New("compose file not found")

	// ErrServiceMissing is returned when the compose file does not
	// define the configured web service.
	ErrServiceMissing = errors.New("web service not defined in compose file")
)

type composeFile struct {
	Services map[string]interface{} `yaml:"services"`
}

// Preflight checks that path exists, parses as YAML, and defines
// service. It has no side effects.
func Preflight(path, service string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return fmt.Errorf("failed to read %s: %v", path, err)
	}

	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse %s: %v", path, err)
	}

	if _, ok := cf.Services[service]; !ok {
		return fmt.Errorf("%w: %s has no service %q", ErrServiceMissing, path, service)
	}

	return nil
}
