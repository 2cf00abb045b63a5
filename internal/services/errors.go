package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrEvaluationTimeout = errors.New("insight evaluation timed out")
	ErrUnknownInsightID  = errors.New("unknown insight id")
)

func storeUnavailable(operation string, err error) error {
	return fmt.Errorf("%s: %w: %w", operation, ErrStoreUnavailable, err)
}

// incidentLog writes one line when an operation starts failing and one when it recovers.
type incidentLog struct {
	logger *slog.Logger
	mu     sync.Mutex
	open   map[string]struct{}
}

func newIncidentLog(logger *slog.Logger) *incidentLog {
	return &incidentLog{logger: logger, open: make(map[string]struct{})}
}

func (incidents *incidentLog) Fail(operation string, err error) {
	incidents.mu.Lock()
	_, alreadyOpen := incidents.open[operation]
	incidents.open[operation] = struct{}{}
	incidents.mu.Unlock()

	if !alreadyOpen {
		incidents.logger.Error("store unavailable", "operation", operation, "error", err)
	}
}

func (incidents *incidentLog) Resolve(operation string) {
	incidents.mu.Lock()
	_, wasOpen := incidents.open[operation]
	delete(incidents.open, operation)
	incidents.mu.Unlock()

	if wasOpen {
		incidents.logger.Info("store recovered", "operation", operation)
	}
}
