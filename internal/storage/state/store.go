package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/storage/archive"
	"go.uber.org/zap"
)

const (
	backupSuffix    = ".backup"
	corruptedSuffix = ".corrupted."
	timestampLayout = "20060102_150405"
	snapshotPrefix  = "snapshots/"

	// DefaultKeep is how many archived snapshots survive pruning.
	DefaultKeep = 5
)

// Recorder receives persistence metrics.
type Recorder interface {
	PersistenceWrite(status string)
	PersistenceRecovery(source string)
}

// Option configures a Store.
type Option func(*Store)

// WithArchive enables Snapshot, keeping the newest keep snapshots.
func WithArchive(storage archive.Storage, keep int) Option {
	return func(s *Store) {
		s.archive = storage
		if keep > 0 {
			s.keep = keep
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// Store persists a single JSON document with crash-safe replacement and
// self-healing reads. Write failures are reported as false and corruption is
// recovered internally; neither is returned as an error.
type Store struct {
	mu       sync.Mutex
	path     string
	doc      Document
	archive  archive.Storage
	keep     int
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	rename   func(oldpath, newpath string) error
}

// NewStore creates a store for dir/filename, creating dir if needed.
func NewStore(dir, filename string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("state file name"))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, core.WrapError(core.ErrPersistenceWrite, fmt.Errorf("creating state dir: %w", err))
	}
	s := &Store{
		path:   filepath.Join(dir, filename),
		keep:   DefaultKeep,
		logger: logger.With(zap.String("component", "state")),
		now:    time.Now,
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the main state file path.
func (s *Store) Path() string { return s.path }

// BackupPath returns the rolling backup path.
func (s *Store) BackupPath() string { return s.path + backupSuffix }

// Current returns a copy of the last saved or loaded document.
func (s *Store) Current() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.clone()
}

// Save replaces the state file with doc. The previous file is kept as the
// backup, and the main file is never observed half written.
func (s *Store) Save(doc Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

// SaveInvestments replaces the investment list and keeps everything else.
func (s *Store) SaveInvestments(investments []core.Investment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc.clone()
	doc.Investments = investments
	return s.saveLocked(doc)
}

// SaveSessions replaces the session list and keeps everything else.
func (s *Store) SaveSessions(sessions []SessionRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc.clone()
	doc.Sessions = sessions
	return s.saveLocked(doc)
}

func (s *Store) saveLocked(doc Document) bool {
	return s.commit(doc, true)
}

// commit writes doc. With rotate false the existing main file is not copied
// over the backup first.
func (s *Store) commit(doc Document, rotate bool) bool {
	doc = doc.clone()
	doc.LastUpdated = s.now().UTC()

	if err := s.write(doc, rotate); err != nil {
		s.logger.Error("failed to save state",
			zap.String("path", s.path),
			zap.Error(core.WrapError(core.ErrPersistenceWrite, err)),
		)
		s.observeWrite("error")
		return false
	}

	s.doc = doc
	s.observeWrite("ok")
	s.logger.Debug("saved state",
		zap.String("path", s.path),
		zap.Int("investments", len(doc.Investments)),
		zap.Int("sessions", len(doc.Sessions)),
	)
	return true
}

func (s *Store) write(doc Document, rotate bool) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if _, err := os.Stat(s.path); rotate && err == nil {
		if err := copyFile(s.path, s.BackupPath()); err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	committed = true
	return nil
}

// Load reads the state, falling back to the backup when the main file is
// unreadable. A corrupted file is renamed aside, never deleted. A document
// recovered from the backup is re-saved as the main file. When nothing is
// usable the empty document is returned with false.
func (s *Store) Load() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readFile(s.path)
	if err == nil {
		s.doc = doc
		s.logger.Info("loaded state", zap.String("path", s.path), zap.Int("investments", len(doc.Investments)))
		return doc.clone(), true
	}
	mainMissing := errors.Is(err, os.ErrNotExist)
	movedAside := false
	if !mainMissing {
		movedAside = s.quarantine(s.path, err)
	}

	backup, berr := s.readFile(s.BackupPath())
	switch {
	case berr == nil:
		s.logger.Warn("main state unusable, recovered from backup", zap.String("backup", s.BackupPath()))
		s.observeRecovery("backup")
		// A corrupted main that is still in place must not overwrite the
		// backup it is being healed from.
		if !s.commit(backup, mainMissing || movedAside) {
			// The recovered data is still served from memory
			s.doc = backup
		}
		return s.doc.clone(), true
	case errors.Is(berr, os.ErrNotExist):
		if mainMissing {
			s.logger.Info("no saved state, starting empty", zap.String("path", s.path))
			s.doc = Document{}
			return Document{}, true
		}
	default:
		s.quarantine(s.BackupPath(), berr)
	}

	s.logger.Error("state and backup unusable, starting empty", zap.String("path", s.path))
	s.observeRecovery("empty")
	s.doc = Document{}
	return Document{}, false
}

// readFile parses and validates a state file. Parse and validation failures
// are wrapped in ErrPersistenceCorruption.
func (s *Store) readFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, core.WrapError(core.ErrPersistenceCorruption, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, core.WrapError(core.ErrPersistenceCorruption, err)
	}
	if doc.Investments == nil {
		doc.Investments = []core.Investment{}
	}
	return doc, nil
}

// quarantine renames a bad file to <path>.corrupted.<timestamp> and reports
// whether the file was moved.
func (s *Store) quarantine(path string, cause error) bool {
	target := path + corruptedSuffix + s.now().Format(timestampLayout)
	for i := 1; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = fmt.Sprintf("%s%s%s_%d", path, corruptedSuffix, s.now().Format(timestampLayout), i)
	}

	if err := s.rename(path, target); err != nil {
		s.logger.Error("failed to move corrupted state aside", zap.String("path", path), zap.Error(err))
		return false
	}
	s.logger.Warn("moved corrupted state aside",
		zap.String("path", path),
		zap.String("corrupted", target),
		zap.Error(cause),
	)
	return true
}

// Snapshot copies the current state file to the archive and prunes old
// snapshots beyond the keep limit.
func (s *Store) Snapshot(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.archive == nil {
		s.logger.Warn("snapshot requested but no archive is configured")
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("no state file to snapshot", zap.String("path", s.path), zap.Error(err))
		return false
	}

	name := snapshotPrefix + s.stem() + "_" + s.now().Format(timestampLayout) + ".json"
	if err := s.archive.Write(ctx, name, data); err != nil {
		s.logger.Error("failed to write snapshot", zap.String("snapshot", name), zap.Error(err))
		return false
	}
	s.logger.Info("created snapshot", zap.String("snapshot", name))

	s.prune(ctx)
	return true
}

// Snapshots lists archived snapshots of this state file, oldest first.
func (s *Store) Snapshots(ctx context.Context) ([]string, error) {
	if s.archive == nil {
		return nil, nil
	}
	paths, err := s.archive.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, err
	}
	prefix := snapshotPrefix + s.stem() + "_"
	out := paths[:0]
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Restore validates an archived snapshot and saves it as the current state.
func (s *Store) Restore(ctx context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.archive == nil {
		return false
	}
	data, err := s.archive.Read(ctx, name)
	if err != nil {
		s.logger.Error("failed to read snapshot", zap.String("snapshot", name), zap.Error(err))
		return false
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("snapshot is not valid state", zap.String("snapshot", name), zap.Error(err))
		return false
	}
	if err := doc.Validate(); err != nil {
		s.logger.Error("snapshot is not valid state", zap.String("snapshot", name), zap.Error(err))
		return false
	}
	return s.saveLocked(doc)
}

func (s *Store) prune(ctx context.Context) {
	paths, err := s.Snapshots(ctx)
	if err != nil {
		s.logger.Warn("failed to list snapshots", zap.Error(err))
		return
	}
	if len(paths) <= s.keep {
		return
	}
	// Timestamped names sort chronologically
	for _, old := range paths[:len(paths)-s.keep] {
		if err := s.archive.Delete(ctx, old); err != nil {
			s.logger.Warn("failed to delete old snapshot", zap.String("snapshot", old), zap.Error(err))
			continue
		}
		s.logger.Debug("removed old snapshot", zap.String("snapshot", old))
	}
}

func (s *Store) stem() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *Store) observeWrite(status string) {
	if s.recorder != nil {
		s.recorder.PersistenceWrite(status)
	}
}

func (s *Store) observeRecovery(source string) {
	if s.recorder != nil {
		s.recorder.PersistenceRecovery(source)
	}
}

// copyFile replaces dst with the contents of src without ever leaving a
// truncated dst behind.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
