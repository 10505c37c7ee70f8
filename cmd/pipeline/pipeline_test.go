package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-native/compose-deploy/cmd/config"
	"github.com/go-native/compose-deploy/cmd/remote"
	"github.com/go-native/compose-deploy/cmd/store"
)

type call struct {
	env  []string
	name string
	args []string
}

type fakeRunner struct {
	calls     []call
	failStage string // "build", "tag" or "push"
}

func (r *fakeRunner) Run(env []string, name string, args ...string) error {
	r.calls = append(r.calls, call{env: env, name: name, args: args})
	stage := args[0]
	if stage == "compose" {
		stage = "build"
	}
	if stage == r.failStage {
		return errors.New("exit status 1")
	}
	return nil
}

func (r *fakeRunner) argsFor(stage string) []string {
	for _, c := range r.calls {
		if c.args[0] == stage {
			return c.args
		}
	}
	return nil
}

type fakeSession struct {
	commands []string
	failOn   string
	closed   bool
}

func (s *fakeSession) Run(command string) ([]byte, error) {
	s.commands = append(s.commands, command)
	if s.failOn != "" && strings.Contains(command, s.failOn) {
		return []byte("boom"), errors.New("exit status 1")
	}
	return nil, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeStore struct {
	created   *store.Release
	status    string
	stage     string
	errMsg    string
	finalized bool
}

func (f *fakeStore) CreateRelease(r *store.Release) error { f.created = r; return nil }

func (f *fakeStore) FinalizeRelease(id, status, stage, errMsg string) error {
	f.finalized = true
	f.status, f.stage, f.errMsg = status, stage, errMsg
	return nil
}

func (f *fakeStore) ListReleases(limit int) ([]store.Release, error) { return nil, nil }

func (f *fakeStore) Close() error { return nil }

func testConfig(t *testing.T, tag string) *config.Config {
	t.Helper()
	composeFile := filepath.Join(t.TempDir(), "docker-compose.prod.yml")
	require.NoError(t, os.WriteFile(composeFile, []byte("services:\n  web:\n    image: x\n"), 0644))
	return &config.Config{
		Registry:    "reg.example.com",
		ImageName:   "libsys",
		Domain:      "libsys.example.com",
		Email:       "ops@example.com",
		Tag:         tag,
		DeployUser:  "deploy",
		DeployHost:  "10.0.0.5",
		DeployPath:  "/srv/libsys",
		ComposeFile: composeFile,
		WebService:  "web",
	}
}

func newPipeline(cfg *config.Config, r *fakeRunner, sess *fakeSession) (*Pipeline, *int) {
	dials := 0
	return &Pipeline{
		Config: cfg,
		Runner: r,
		Dial: func(*config.Config) (remote.Session, error) {
			dials++
			return sess, nil
		},
	}, &dials
}

func TestRunSuccess(t *testing.T) {
	r := &fakeRunner{}
	sess := &fakeSession{}
	p, dials := newPipeline(testConfig(t, "latest"), r, sess)

	require.NoError(t, p.Run())

	// build, tag, push, in that order
	require.Len(t, r.calls, 3)
	assert.Equal(t, "compose", r.calls[0].args[0])
	assert.Equal(t, []string{"tag", "libsys:latest", "reg.example.com/libsys:latest"}, r.calls[1].args)
	assert.Equal(t, []string{"push", "reg.example.com/libsys:latest"}, r.calls[2].args)

	assert.Equal(t, 1, *dials)
	assert.Len(t, sess.commands, 8)
	assert.True(t, sess.closed)
}

func TestRunVersionedTag(t *testing.T) {
	r := &fakeRunner{}
	p, _ := newPipeline(testConfig(t, "v2"), r, &fakeSession{})

	require.NoError(t, p.Run())

	assert.Equal(t, []string{"tag", "libsys:v2", "reg.example.com/libsys:v2"}, r.argsFor("tag"))
	assert.Equal(t, []string{"push", "reg.example.com/libsys:v2"}, r.argsFor("push"))
}

func TestMissingRequiredKeyNeverBuilds(t *testing.T) {
	// The deploy command loads configuration before a pipeline exists;
	// a missing required key must fail there, with zero build calls.
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"DOCKER_REGISTRY=reg.example.com\nDOCKER_IMAGE_NAME=libsys\nDOMAIN=libsys.example.com\n"), 0644))

	r := &fakeRunner{}
	_, err := config.Load(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL")
	assert.Empty(t, r.calls)
}

func TestPreflightFailureStopsBeforeBuild(t *testing.T) {
	cfg := testConfig(t, "latest")
	cfg.ComposeFile = filepath.Join(t.TempDir(), "nope.yml")
	r := &fakeRunner{}
	p, dials := newPipeline(cfg, r, &fakeSession{})

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreflightFailed)
	assert.Empty(t, r.calls)
	assert.Equal(t, 0, *dials)
}

func TestBuildFailureHaltsPipeline(t *testing.T) {
	r := &fakeRunner{failStage: "build"}
	p, dials := newPipeline(testConfig(t, "latest"), r, &fakeSession{})

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildFailed)

	// Only the build was attempted; tag, push and the remote session were not.
	require.Len(t, r.calls, 1)
	assert.Equal(t, "compose", r.calls[0].args[0])
	assert.Equal(t, 0, *dials)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageBuild, se.Stage)
}

func TestPushFailureHaltsBeforeRemote(t *testing.T) {
	r := &fakeRunner{failStage: "push"}
	p, dials := newPipeline(testConfig(t, "latest"), r, &fakeSession{})

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPushFailed)
	assert.Len(t, r.calls, 3)
	assert.Equal(t, 0, *dials)
}

func TestRemoteMigrationFailureStopsRestart(t *testing.T) {
	sess := &fakeSession{failOn: "manage.py migrate"}
	p, _ := newPipeline(testConfig(t, "latest"), &fakeRunner{}, sess)

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteDeployFailed)

	var stepErr *remote.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "apply migrations", stepErr.Step)

	assert.Len(t, sess.commands, 6)
	for _, cmd := range sess.commands {
		assert.NotContains(t, cmd, "restart")
	}
	assert.True(t, sess.closed)
}

func TestMissingRemoteKeyFailsBeforeDial(t *testing.T) {
	cfg := testConfig(t, "latest")
	cfg.DeployHost = ""
	p, dials := newPipeline(cfg, &fakeRunner{}, &fakeSession{})

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteDeployFailed)
	assert.Contains(t, err.Error(), "DEPLOY_HOST")
	assert.Equal(t, 0, *dials)
}

func TestSkipRemote(t *testing.T) {
	cfg := testConfig(t, "latest")
	cfg.DeployUser, cfg.DeployHost, cfg.DeployPath = "", "", ""
	r := &fakeRunner{}
	p, dials := newPipeline(cfg, r, &fakeSession{})
	p.SkipRemote = true

	require.NoError(t, p.Run())
	assert.Len(t, r.calls, 3)
	assert.Equal(t, 0, *dials)
}

func TestReleaseRecordLifecycle(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		st := &fakeStore{}
		p, _ := newPipeline(testConfig(t, "latest"), &fakeRunner{}, &fakeSession{})
		p.History = st

		require.NoError(t, p.Run())

		require.NotNil(t, st.created)
		assert.Equal(t, "reg.example.com/libsys:latest", st.created.Image)
		assert.Equal(t, store.StatusStarted, st.created.Status)
		require.True(t, st.finalized)
		assert.Equal(t, store.StatusSucceeded, st.status)
		assert.Equal(t, StageRemoteDeploy, st.stage)
		assert.Empty(t, st.errMsg)
	})

	t.Run("failure records stage", func(t *testing.T) {
		st := &fakeStore{}
		p, _ := newPipeline(testConfig(t, "latest"), &fakeRunner{failStage: "build"}, &fakeSession{})
		p.History = st

		require.Error(t, p.Run())

		require.True(t, st.finalized)
		assert.Equal(t, store.StatusFailed, st.status)
		assert.Equal(t, StageBuild, st.stage)
		assert.Contains(t, st.errMsg, "build failed")
	})
}

func TestDialFailure(t *testing.T) {
	p := &Pipeline{
		Config: testConfig(t, "latest"),
		Runner: &fakeRunner{},
		Dial: func(*config.Config) (remote.Session, error) {
			return nil, errors.New("connection refused")
		},
	}

	err := p.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteDeployFailed)
	assert.Contains(t, err.Error(), "connection refused")
}
