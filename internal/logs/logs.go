package logs

import (
	"os"
	"sync"

	"github.com/harvard-lil/docker-compose-update-action/internal/ui"
)

var (
	initOnce sync.Once
	logger   *ui.Logger
)

func Init() {
	initOnce.Do(func() {
		logger = ui.New(ui.Options{
			Out:      os.Stderr,
			LogLevel: ui.LogLevelInfo,
		})
	})
}

func L() *ui.Logger {
	Init()
	return logger
}

// SetDebugVerbosity maps the count of -v flags to a log level.
func SetDebugVerbosity(cnt int) {
	switch {
	case cnt <= 0:
		L().SetLogLevel(ui.LogLevelInfo)
	case cnt == 1:
		L().SetLogLevel(ui.LogLevelDebug)
	default:
		L().SetLogLevel(ui.LogLevelDebugVerbose)
	}
}

func Infof(format string, args ...any) {
	L().Info(format, args...)
}

func Debugf(format string, args ...any) {
	L().Debug(format, args...)
}

func Warnf(format string, args ...any) {
	L().Warn(format, args...)
}

func Errorf(format string, args ...any) {
	L().Error(format, args...)
}
