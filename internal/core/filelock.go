package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/agentkit-forge/agentkit/internal/storage"
)

// markerHolder is written into a marker lock so an operator can tell who
// left it behind.
type markerHolder struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// tryMarkerLock creates the marker file at path if it does not exist. It
// never waits: acquired is false when another process holds the marker.
// The returned release func removes the marker and is safe to defer.
func tryMarkerLock(path string, holder any) (release func() error, acquired bool, err error) {
	data, err := json.Marshal(holder)
	if err != nil {
		return nil, false, fmt.Errorf("encoding lock holder: %w", err)
	}
	if err := storage.CreateExclusive(path, data); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("creating lock %s: %w", path, err)
	}
	return func() error {
		_, err := storage.RemoveIfExists(path)
		return err
	}, true, nil
}

func newMarkerHolder(now time.Time) markerHolder {
	return markerHolder{PID: os.Getpid(), AcquiredAt: now.UTC()}
}
