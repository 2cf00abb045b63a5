package services

import (
	"context"
	"log/slog"
)

type countingHandler struct {
	count *int
}

func (handler *countingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (handler *countingHandler) Handle(context.Context, slog.Record) error {
	*handler.count++
	return nil
}

func (handler *countingHandler) WithAttrs([]slog.Attr) slog.Handler {
	return handler
}

func (handler *countingHandler) WithGroup(string) slog.Handler {
	return handler
}

func slogLoggerWith(handler slog.Handler) *slog.Logger {
	return slog.New(handler)
}
