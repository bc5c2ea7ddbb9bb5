package core

import "go.uber.org/zap"

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(action string, data map[string]any) error
}

// emitEvent records action on events when one is configured. The mutation
// it describes has already been persisted, so a failed append is logged
// rather than returned.
func emitEvent(events EventLogger, logger *zap.Logger, action string, data map[string]any) {
	if events == nil {
		return
	}
	if err := events.LogEvent(action, data); err != nil {
		logger.Warn("appending event failed", zap.String("action", action), zap.Error(err))
	}
}
