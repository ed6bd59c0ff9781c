package webrtc

import (
	"fmt"

	"github.com/pion/logging"
	"go.uber.org/zap"
)

// pionLoggerFactory sends pion's internal logs (ICE, DTLS, SCTP) through zap.
// pion is chatty at info level, so its Info maps to zap Debug.
type pionLoggerFactory struct {
	logger *zap.SugaredLogger
}

func newPionLoggerFactory(logger *zap.SugaredLogger) logging.LoggerFactory {
	return pionLoggerFactory{logger: logger.With("component", "pion")}
}

func (f pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{logger: f.logger.With("scope", scope)}
}

type pionLogger struct {
	logger *zap.SugaredLogger
}

func (l pionLogger) Trace(msg string) {}
func (l pionLogger) Tracef(format string, args ...interface{}) {}

func (l pionLogger) Debug(msg string) { l.logger.Debug(msg) }
func (l pionLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l pionLogger) Info(msg string) { l.logger.Debug(msg) }
func (l pionLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l pionLogger) Warn(msg string) { l.logger.Warn(msg) }
func (l pionLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l pionLogger) Error(msg string) { l.logger.Error(msg) }
func (l pionLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
