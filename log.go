package serialscope

import "log/slog"

// discardLogger returns a logger that drops everything, keeping the
// package quiet unless a caller injects a real handler
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
