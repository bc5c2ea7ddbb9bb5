package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentkit-forge/agentkit/internal/storage"
	"github.com/agentkit-forge/agentkit/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLockStaleAfter is the age past which a session lock is treated as
// abandoned.
const DefaultLockStaleAfter = 30 * time.Minute

// LockHolder identifies the process taking the session lock. Zero fields are
// filled from the current process.
type LockHolder struct {
	PID       int
	Hostname  string
	SessionID string
}

// LockResult is the outcome of an Acquire call. Lock is the record written
// on success; Existing is the holder that kept or won the lock otherwise.
// Existing is nil when the competing lock could not be read.
type LockResult struct {
	Acquired bool
	Lock     *models.SessionLock
	Existing *models.SessionLock
}

// LockStatus is a read-only view of the session lock.
type LockStatus struct {
	Locked bool
	Stale  bool
	Lock   *models.SessionLock
	Age    time.Duration
}

// SessionLockManager guards orchestrator state with a single lock file.
// Acquisition never waits.
type SessionLockManager interface {
	Acquire(holder LockHolder) (*LockResult, error)
	Release() (bool, error)
	Check() (*LockStatus, error)
}

type fileSessionLock struct {
	path       string
	staleAfter time.Duration
	logger     *zap.Logger
	now        Clock
}

// NewSessionLockManager creates a SessionLockManager for the lock file at
// path. staleAfter values below 1 use DefaultLockStaleAfter.
func NewSessionLockManager(path string, staleAfter time.Duration, logger *zap.Logger, now Clock) SessionLockManager {
	if staleAfter <= 0 {
		staleAfter = DefaultLockStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &fileSessionLock{path: path, staleAfter: staleAfter, logger: logger, now: now}
}

// Acquire creates the lock file exclusively. A live lock is reported back
// with its holder. A stale or corrupt lock is evicted and the create retried
// once; if another process wins that retry, its record is returned.
func (m *fileSessionLock) Acquire(holder LockHolder) (*LockResult, error) {
	lock := m.newLock(holder)
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding session lock: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	err = storage.CreateExclusive(m.path, data)
	if err == nil {
		return &LockResult{Acquired: true, Lock: lock}, nil
	}
	if !errors.Is(err, storage.ErrExists) {
		return nil, fmt.Errorf("creating session lock: %w", err)
	}

	raw, existing, err := m.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Released between our create and our read.
	case errors.Is(err, errCorruptLock):
		m.logger.Warn("session lock unreadable, replacing", zap.String("path", m.path), zap.Error(err))
		if evicted, err := m.evict(raw); err != nil || !evicted {
			return m.lost(nil, err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading session lock: %w", err)
	case m.now().Sub(existing.StartedAt) < m.staleAfter:
		return &LockResult{Existing: existing}, nil
	default:
		m.logger.Info("taking over stale session lock",
			zap.Int("pid", existing.PID), zap.Time("started_at", existing.StartedAt))
		if evicted, err := m.evict(raw); err != nil || !evicted {
			return m.lost(existing, err)
		}
	}

	err = storage.CreateExclusive(m.path, data)
	if err == nil {
		return &LockResult{Acquired: true, Lock: lock}, nil
	}
	if !errors.Is(err, storage.ErrExists) {
		return nil, fmt.Errorf("creating session lock: %w", err)
	}
	return m.lost(existing, nil)
}

// lost reports a failed takeover. The current holder is re-read; fallback is
// returned when that fails.
func (m *fileSessionLock) lost(fallback *models.SessionLock, err error) (*LockResult, error) {
	if err != nil {
		return nil, err
	}
	if _, winner, rerr := m.read(); rerr == nil {
		return &LockResult{Existing: winner}, nil
	}
	return &LockResult{Existing: fallback}, nil
}

// evict removes the lock file only if it still holds judged. The file is
// first renamed aside so two processes evicting the same stale lock cannot
// delete a fresh lock written in between. If the renamed file turns out to
// be a newer lock it is linked back into place.
func (m *fileSessionLock) evict(judged []byte) (bool, error) {
	aside := fmt.Sprintf("%s.%d.%s.evict", m.path, os.Getpid(), uuid.NewString())
	if err := os.Rename(m.path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("evicting session lock: %w", err)
	}
	defer os.Remove(aside)

	moved, err := os.ReadFile(aside)
	if err != nil {
		return false, fmt.Errorf("reading evicted session lock: %w", err)
	}
	if bytes.Equal(moved, judged) {
		return true, nil
	}
	if err := os.Link(aside, m.path); err != nil && !errors.Is(err, os.ErrExist) {
		return false, fmt.Errorf("restoring session lock: %w", err)
	}
	return false, nil
}

// Release removes the lock file, reporting whether one existed.
func (m *fileSessionLock) Release() (bool, error) {
	removed, err := storage.RemoveIfExists(m.path)
	if err != nil {
		return false, fmt.Errorf("releasing session lock: %w", err)
	}
	return removed, nil
}

// Check inspects the lock without modifying it. A corrupt lock is reported
// as unlocked.
func (m *fileSessionLock) Check() (*LockStatus, error) {
	_, lock, err := m.read()
	if errors.Is(err, os.ErrNotExist) {
		return &LockStatus{}, nil
	}
	if errors.Is(err, errCorruptLock) {
		return &LockStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session lock: %w", err)
	}
	age := m.now().Sub(lock.StartedAt)
	return &LockStatus{Locked: true, Stale: age >= m.staleAfter, Lock: lock, Age: age}, nil
}

var errCorruptLock = errors.New("session lock is corrupt")

// read returns the raw lock bytes and the decoded record.
func (m *fileSessionLock) read() ([]byte, *models.SessionLock, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, nil, err
	}
	var lock models.SessionLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return raw, nil, fmt.Errorf("%w: %v", errCorruptLock, err)
	}
	if lock.StartedAt.IsZero() {
		return raw, nil, fmt.Errorf("%w: missing started_at", errCorruptLock)
	}
	return raw, &lock, nil
}

func (m *fileSessionLock) newLock(holder LockHolder) *models.SessionLock {
	lock := &models.SessionLock{
		PID:       holder.PID,
		Hostname:  holder.Hostname,
		StartedAt: m.now().UTC(),
		SessionID: holder.SessionID,
	}
	if lock.PID == 0 {
		lock.PID = os.Getpid()
	}
	if lock.Hostname == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "unknown"
		}
		lock.Hostname = host
	}
	if lock.SessionID == "" {
		lock.SessionID = uuid.NewString()
	}
	return lock
}
