// Package logging provides the silent default logger handed to
// components whose config leaves the logger unset. The root package
// owns the real logger; keeping the no-op here lets subpackages share
// it without an import cycle.
package logging

import (
	"context"
	"log/slog"
)

// nopHandler discards all records. Enabled returns false so callers
// skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Nop returns a logger that silently discards all output.
func Nop() *slog.Logger { return slog.New(nopHandler{}) }
