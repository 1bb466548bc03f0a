// Package logger provides a leveled logging facade used across the
// gateway. It keeps the teacher's call surface (Init, SetLevel,
// EnableFileLogging, Debug/Info/Warn/Error/Fatal and their formatted
// variants) but backs it with zerolog instead of the stdlib log
// package, matching the structured-logging setup used elsewhere in
// the retrieved pack.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	mu          sync.Mutex
	initialized bool
	logFile     *os.File
	base        zerolog.Logger
)

// Init configures the default console-only logger at INFO level. Safe
// to call more than once; subsequent calls are no-ops.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return
	}
	zerolog.TimeFieldFormat = "2006-01-02 15:04:05.000"
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: zerolog.TimeFieldFormat}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Caller().
		Logger()
	initialized = true
}

// SetLevel changes the minimum level that is emitted.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	base = base.Level(level.zerologLevel())
}

// EnableFileLogging adds a log file under logDir (named
// "<prefix>_<timestamp>.log") as an additional sink alongside the
// console writer.
func EnableFileLogging(logDir, prefix string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	if prefix != "" {
		prefix += "_"
	}
	name := prefix + time.Now().Format("20060102_150405") + ".log"
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f

	multi := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: zerolog.TimeFieldFormat},
		f,
	)
	base = zerolog.New(multi).Level(base.GetLevel()).With().Timestamp().Caller().Logger()
	return nil
}

// Sync flushes and closes the log file, if one is open.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Writer exposes the current base writer, e.g. for wiring a third
// party library's own logger (http server error log) through ours.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return base
}

func snapshot() zerolog.Logger {
	mu.Lock()
	needInit := !initialized
	mu.Unlock()
	if needInit {
		Init()
	}
	mu.Lock()
	defer mu.Unlock()
	return base
}

func Debug(msg string)                          { snapshot().Debug().Msg(msg) }
func Debugf(format string, args ...interface{}) { snapshot().Debug().Msgf(format, args...) }

func Info(msg string)                          { snapshot().Info().Msg(msg) }
func Infof(format string, args ...interface{}) { snapshot().Info().Msgf(format, args...) }

func Warn(msg string)                          { snapshot().Warn().Msg(msg) }
func Warnf(format string, args ...interface{}) { snapshot().Warn().Msgf(format, args...) }

func Error(msg string, err error) {
	if err != nil {
		snapshot().Error().Err(err).Msg(msg)
		return
	}
	snapshot().Error().Msg(msg)
}

func Errorf(format string, args ...interface{}) { snapshot().Error().Msgf(format, args...) }

// Fatal logs at FATAL and terminates the process — a gateway process
// has nothing useful to do after failing to bind its RPC port or load
// its configuration, unlike a library caller who should get the error
// back instead.
func Fatal(msg string, err error) {
	if err != nil {
		snapshot().Fatal().Err(err).Msg(msg)
		return
	}
	snapshot().Fatal().Msg(msg)
}

func Fatalf(format string, args ...interface{}) { snapshot().Fatal().Msgf(format, args...) }
