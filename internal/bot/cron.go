package bot

import (
	"time"

	"github.com/STTM-NSU/paper-trader/internal/logger"
)

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorf("%s: cron: %s %v", err, msg, keysAndValues)
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
