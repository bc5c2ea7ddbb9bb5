package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrExists is returned by CreateExclusive when the target already exists.
var ErrExists = errors.New("file already exists")

const (
	renameAttempts = 5
	renameBackoff  = 10 * time.Millisecond
)

// renameFile is swapped in tests to simulate transient rename conflicts.
var renameFile = os.Rename

// WriteFileAtomic writes data to a uniquely named temporary file beside path
// and renames it over path, so readers see either the old or the new content
// and never a partial write. Rename failures are retried with a short linear
// backoff; some platforms refuse to replace a file another process has open.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}

	var renameErr error
	for attempt := 1; attempt <= renameAttempts; attempt++ {
		if renameErr = renameFile(tmpPath, path); renameErr == nil {
			return nil
		}
		if attempt < renameAttempts {
			time.Sleep(time.Duration(attempt) * renameBackoff)
		}
	}

	_ = os.Remove(tmpPath)
	return fmt.Errorf("replacing %s after %d attempts: %w", path, renameAttempts, renameErr)
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return "", err
	}
	tmpPath := fmt.Sprintf("%s.%d.%s.tmp", path, os.Getpid(), suffix)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return "", fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("syncing temp file for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	return tmpPath, nil
}

// WriteJSONAtomic marshals v as indented JSON with a trailing newline and
// writes it with WriteFileAtomic.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	return WriteFileAtomic(path, data, 0o644)
}

// ReadJSON decodes the JSON file at path into v. A missing file yields an
// error wrapping os.ErrNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// CreateExclusive creates path with the given content only if it does not
// already exist. It is the filesystem's create-if-absent primitive and backs
// every lock in the system.
//
// The content is staged in a temp file and hard-linked into place, so a
// concurrent reader never sees the file empty. Filesystems without hard
// links fall back to an O_EXCL create followed by the write.
func CreateExclusive(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmpPath, err := writeTemp(path, data, 0o644)
	if err != nil {
		return err
	}
	linkErr := os.Link(tmpPath, path)
	_ = os.Remove(tmpPath)
	if linkErr == nil {
		return nil
	}
	if errors.Is(linkErr, os.ErrExist) {
		return ErrExists
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// RemoveIfExists deletes path and reports whether anything was removed.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("removing %s: %w", path, err)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
