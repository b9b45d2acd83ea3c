package whatsapp

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogLogger routes whatsmeow's printf-style logs into slog.
type slogLogger struct {
	log *slog.Logger
}

func newSlogLogger(log *slog.Logger, module string) waLog.Logger {
	return slogLogger{log: log.With("module", module)}
}

func (l slogLogger) Errorf(msg string, args ...any) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

func (l slogLogger) Warnf(msg string, args ...any) {
	l.log.Warn(fmt.Sprintf(msg, args...))
}

func (l slogLogger) Infof(msg string, args ...any) {
	l.log.Debug(fmt.Sprintf(msg, args...))
}

func (l slogLogger) Debugf(msg string, args ...any) {
	l.log.Debug(fmt.Sprintf(msg, args...))
}

func (l slogLogger) Sub(module string) waLog.Logger {
	return slogLogger{log: l.log.With("submodule", module)}
}
