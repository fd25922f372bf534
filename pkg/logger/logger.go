package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// Printf adapts a slog.Logger to printf-style hooks used by third-party clients.
// Messages are emitted at level with the component attribute.
func Printf(log *slog.Logger, level slog.Level, component string) func(string, ...any) {
	if log == nil {
		return func(string, ...any) {}
	}
	log = log.With("component", component)
	return func(format string, args ...any) {
		log.Log(context.Background(), level, fmt.Sprintf(format, args...))
	}
}
