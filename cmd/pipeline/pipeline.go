// Package pipeline sequences the deployment stages: compose preflight,
// image build, tag, push, and the remote deployment session. Stages run
// strictly in order, the first failure halts everything after it, and
// nothing is retried or rolled back.
package pipeline

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/go-native/compose-deploy/cmd/compose"
	"github.com/go-native/compose-deploy/cmd/config"
	"github.com/go-native/compose-deploy/cmd/docker"
	"github.com/go-native/compose-deploy/cmd/gitmeta"
	"github.com/go-native/compose-deploy/cmd/notify"
	"github.com/go-native/compose-deploy/cmd/remote"
	"github.com/go-native/compose-deploy/cmd/store"
)

// Stage sentinels. The concrete failure wraps one of these, so callers
// can match the failed stage with errors.Is.
var (
	ErrPreflightFailed    = errors.New("compose preflight failed")
	ErrBuildFailed        = errors.New("build failed")
	ErrTagFailed          = errors.New("tag failed")
	ErrPushFailed         = errors.New("push failed")
	ErrRemoteDeployFailed = errors.New("remote deploy failed")
)

// Stage names, in execution order.
const (
	StagePreflight    = "preflight"
	StageBuild        = "build"
	StageTag          = "tag"
	StagePush         = "push"
	StageRemoteDeploy = "remote deploy"
)

// StageError reports which stage failed. Err wraps the stage sentinel
// and the underlying cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageFail(stage string, sentinel, cause error) error {
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// Pipeline drives one deployment. Config must already be loaded and
// validated; History, Notifier and Git are optional.
type Pipeline struct {
	Config     *config.Config
	Runner     docker.Runner
	Dial       func(*config.Config) (remote.Session, error)
	History    store.Store
	Notifier   notify.Notifier
	Git        *gitmeta.Info
	SkipRemote bool
}

// Run executes the stages in order and returns the first failure. The
// release record and the notification are best-effort and never affect
// the returned error.
func (p *Pipeline) Run() error {
	rel := p.beginRecord()

	err := p.run()

	p.finishRecord(rel, err)
	p.sendNotification(err)

	return err
}

func (p *Pipeline) run() error {
	cfg := p.Config

	log.WithField("stage", StagePreflight).Info("checking compose file")
	if err := compose.Preflight(cfg.ComposeFile, cfg.WebService); err != nil {
		return stageFail(StagePreflight, ErrPreflightFailed, err)
	}

	log.WithField("stage", StageBuild).WithField("image", cfg.LocalImage()).Info("building image")
	if err := docker.Build(p.Runner, cfg); err != nil {
		return stageFail(StageBuild, ErrBuildFailed, err)
	}

	log.WithField("stage", StageTag).WithField("image", cfg.RemoteImage()).Info("tagging image")
	if err := docker.Tag(p.Runner, cfg); err != nil {
		return stageFail(StageTag, ErrTagFailed, err)
	}

	log.WithField("stage", StagePush).WithField("image", cfg.RemoteImage()).Info("pushing image")
	if err := docker.Push(p.Runner, cfg); err != nil {
		return stageFail(StagePush, ErrPushFailed, err)
	}

	if p.SkipRemote {
		log.Info("skipping remote deployment stage")
		return nil
	}

	if err := cfg.ValidateRemote(); err != nil {
		return stageFail(StageRemoteDeploy, ErrRemoteDeployFailed, err)
	}

	log.WithField("stage", StageRemoteDeploy).
		WithField("host", cfg.DeployHost).
		Info("deploying to remote host")
	sess, err := p.Dial(cfg)
	if err != nil {
		return stageFail(StageRemoteDeploy, ErrRemoteDeployFailed, err)
	}
	defer sess.Close()

	if err := remote.RunSteps(sess, remote.DeploySteps(cfg)); err != nil {
		return stageFail(StageRemoteDeploy, ErrRemoteDeployFailed, err)
	}

	log.WithField("image", cfg.RemoteImage()).Info("deployment succeeded")
	return nil
}

func (p *Pipeline) beginRecord() *store.Release {
	if p.History == nil {
		return nil
	}
	rel := store.NewRelease(p.Config.RemoteImage(), p.Config.Tag)
	if p.Git != nil {
		rel.GitSHA = p.Git.SHA
		rel.GitBranch = p.Git.Branch
		rel.GitDirty = p.Git.Dirty
	}
	if err := p.History.CreateRelease(rel); err != nil {
		log.WithError(err).Warn("failed to record release")
		return nil
	}
	return rel
}

func (p *Pipeline) finishRecord(rel *store.Release, runErr error) {
	if rel == nil {
		return
	}
	status := store.StatusSucceeded
	stage := StagePush
	errMsg := ""
	if !p.SkipRemote {
		stage = StageRemoteDeploy
	}
	if runErr != nil {
		status = store.StatusFailed
		errMsg = runErr.Error()
		var se *StageError
		if errors.As(runErr, &se) {
			stage = se.Stage
		}
	}
	if err := p.History.FinalizeRelease(rel.ID, status, stage, errMsg); err != nil {
		log.WithError(err).Warn("failed to finalize release record")
	}
}

func (p *Pipeline) sendNotification(runErr error) {
	if p.Notifier == nil {
		return
	}
	var err error
	if runErr == nil {
		err = p.Notifier.Success(p.Config.RemoteImage())
	} else {
		stage := "unknown"
		var se *StageError
		if errors.As(runErr, &se) {
			stage = se.Stage
		}
		err = p.Notifier.Failure(stage, runErr)
	}
	if err != nil {
		log.WithError(err).Warn("failed to send notification")
	}
}
