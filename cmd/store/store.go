// Package store persists release history in a local SQLite database.
// History is best-effort for the pipeline: a broken store must never
// fail a deployment.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Release statuses.
const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a release is not found.
var ErrNotFound = errors.New("release not found")

// Release is one recorded deploy invocation.
type Release struct {
	ID         string
	Image      string
	Tag        string
	GitSHA     string
	GitBranch  string
	GitDirty   bool
	Status     string
	Stage      string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero until finalized
}

// NewRelease creates a started release record for the given image
// reference.
func NewRelease(image, tag string) *Release {
	return &Release{
		ID:        uuid.NewString(),
		Image:     image,
		Tag:       tag,
		Status:    StatusStarted,
		StartedAt: time.Now().UTC(),
	}
}

// Store is the release history.
type Store interface {
	CreateRelease(r *Release) error
	FinalizeRelease(id, status, stage, errMsg string) error
	ListReleases(limit int) ([]Release, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the history database at path and
// runs migrations.
func Open(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type releaseRow struct {
	ID         string  `db:"id"`
	Image      string  `db:"image"`
	Tag        string  `db:"tag"`
	GitSHA     string  `db:"git_sha"`
	GitBranch  string  `db:"git_branch"`
	GitDirty   bool    `db:"git_dirty"`
	Status     string  `db:"status"`
	Stage      string  `db:"stage"`
	Error      string  `db:"error"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

func (r releaseRow) toRelease() Release {
	rel := Release{
		ID:        r.ID,
		Image:     r.Image,
		Tag:       r.Tag,
		GitSHA:    r.GitSHA,
		GitBranch: r.GitBranch,
		GitDirty:  r.GitDirty,
		Status:    r.Status,
		Stage:     r.Stage,
		Error:     r.Error,
	}
	rel.StartedAt, _ = time.Parse(time.RFC3339, r.StartedAt)
	if r.FinishedAt != nil {
		rel.FinishedAt, _ = time.Parse(time.RFC3339, *r.FinishedAt)
	}
	return rel
}

// CreateRelease inserts a new release record.
func (s *SQLiteStore) CreateRelease(r *Release) error {
	row := releaseRow{
		ID:        r.ID,
		Image:     r.Image,
		Tag:       r.Tag,
		GitSHA:    r.GitSHA,
		GitBranch: r.GitBranch,
		GitDirty:  r.GitDirty,
		Status:    r.Status,
		Stage:     r.Stage,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	_, err := s.db.NamedExec(`
		INSERT INTO releases (id, image, tag, git_sha, git_branch, git_dirty, status, stage, error, started_at)
		VALUES (:id, :image, :tag, :git_sha, :git_branch, :git_dirty, :status, :stage, :error, :started_at)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to create release %s: %w", r.ID, err)
	}
	return nil
}

// FinalizeRelease records the outcome of a release: its final status,
// the last stage reached, and the error message if any.
func (s *SQLiteStore) FinalizeRelease(id, status, stage, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE releases SET status = ?, stage = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, stage, errMsg, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to finalize release %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize release %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to finalize release %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListReleases returns up to limit releases, newest first.
func (s *SQLiteStore) ListReleases(limit int) ([]Release, error) {
	var rows []releaseRow
	err := s.db.Select(&rows, `
		SELECT id, image, tag, git_sha, git_branch, git_dirty, status, stage, error, started_at, finished_at
		FROM releases ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	releases := make([]Release, 0, len(rows))
	for _, row := range rows {
		releases = append(releases, row.toRelease())
	}
	return releases, nil
}
