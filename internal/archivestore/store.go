// Package archivestore persists archives. A Store encodes and validates the
// archive document; a SnapshotStore chosen by DSN keeps the bytes.
package archivestore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/archive"
	"github.com/agentworkforce/slackarchive/internal/logging"
	"github.com/agentworkforce/slackarchive/internal/metrics"
)

var (
	ErrArchiveNotFound  = errors.New("archive not found")
	ErrMalformedArchive = errors.New("malformed archive")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotImplemented   = errors.New("not implemented")
)

// SnapshotStore keeps one encoded archive document. ReadSnapshot returns
// nil, nil when nothing has been written yet.
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context) ([]byte, error)
	WriteSnapshot(ctx context.Context, data []byte) error
}

// SnapshotBackup is implemented by backends that can keep a side copy of a
// document. It returns where the copy went.
type SnapshotBackup interface {
	BackupSnapshot(ctx context.Context, data []byte) (string, error)
}

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	// SkipValidation disables the schema check on load.
	SkipValidation bool
}

type Store struct {
	dsn       string
	snapshots SnapshotStore
	validator *Validator
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

// Open builds a Store for dsn. See BuildSnapshotStoreFromDSN for the
// accepted forms.
func Open(dsn string, opts Options) (*Store, error) {
	snapshots, err := BuildSnapshotStoreFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if snapshots == nil {
		return nil, fmt.Errorf("%w: empty archive location", ErrInvalidInput)
	}
	return NewStore(dsn, snapshots, opts)
}

func NewStore(dsn string, snapshots SnapshotStore, opts Options) (*Store, error) {
	if snapshots == nil {
		return nil, ErrInvalidInput
	}
	s := &Store{
		dsn:       dsn,
		snapshots: snapshots,
		logger:    logging.OrNop(opts.Logger),
		metrics:   opts.Metrics,
	}
	if !opts.SkipValidation {
		validator, err := DefaultValidator()
		if err != nil {
			return nil, err
		}
		s.validator = validator
	}
	return s, nil
}

func (s *Store) String() string {
	return s.dsn
}

// LocalPath reports the file behind a file-backed store.
func (s *Store) LocalPath() (string, bool) {
	if f, ok := s.snapshots.(*FileSnapshots); ok {
		return f.Path, true
	}
	return "", false
}

// Load returns the stored archive, nil when nothing is stored, or an error
// wrapping ErrMalformedArchive when the document cannot be used.
func (s *Store) Load(ctx context.Context) (*archive.Archive, error) {
	a, _, err := s.load(ctx)
	return a, err
}

func (s *Store) load(ctx context.Context) (*archive.Archive, []byte, error) {
	data, err := s.snapshots.ReadSnapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read archive %s: %w", s.dsn, err)
	}
	if data == nil {
		return nil, nil, nil
	}
	if s.validator != nil {
		if err := s.validator.Validate(data); err != nil {
			return nil, data, err
		}
	}
	a, err := archive.Decode(data)
	if err != nil {
		return nil, data, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	s.logger.Debug("archive loaded",
		zap.String("archive", s.dsn),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
		zap.String("threads", humanize.Comma(int64(a.ThreadCount()))),
	)
	return a, data, nil
}

// LoadOrEmpty is the sync-time policy: a missing document starts an empty
// archive. A malformed one also starts empty, but only after the backend
// has kept a copy of it, so a later Save never destroys the only copy.
// Backends that cannot keep a copy return the ErrMalformedArchive error.
func (s *Store) LoadOrEmpty(ctx context.Context) (*archive.Archive, error) {
	a, data, err := s.load(ctx)
	switch {
	case errors.Is(err, ErrMalformedArchive):
		backup, ok := s.snapshots.(SnapshotBackup)
		if !ok {
			return nil, fmt.Errorf("archive %s cannot be backed up before starting empty: %w", s.dsn, err)
		}
		location, backupErr := backup.BackupSnapshot(ctx, data)
		if backupErr != nil {
			return nil, fmt.Errorf("back up malformed archive %s: %w", s.dsn, backupErr)
		}
		s.logger.Warn("existing archive is malformed, kept a copy and starting empty",
			zap.String("archive", s.dsn),
			zap.String("backup", location),
			zap.Error(err),
		)
		return archive.New(), nil
	case err != nil:
		return nil, err
	case a == nil:
		s.logger.Info("no existing archive, starting empty", zap.String("archive", s.dsn))
		return archive.New(), nil
	}
	return a, nil
}

// Require is the render-time policy: the archive must exist and be valid.
func (s *Store) Require(ctx context.Context) (*archive.Archive, error) {
	a, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, s.dsn)
	}
	return a, nil
}

// Save replaces the stored document with a's encoding.
func (s *Store) Save(ctx context.Context, a *archive.Archive) error {
	if a == nil {
		return ErrInvalidInput
	}
	data, err := archive.Encode(a)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := s.snapshots.WriteSnapshot(ctx, data); err != nil {
		return fmt.Errorf("write archive %s: %w", s.dsn, err)
	}
	s.metrics.ArchiveSaved(len(data))
	s.logger.Debug("archive saved",
		zap.String("archive", s.dsn),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
		zap.String("threads", humanize.Comma(int64(a.ThreadCount()))),
	)
	return nil
}

func (s *Store) Close() error {
	if closer, ok := s.snapshots.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
