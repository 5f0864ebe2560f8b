package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/moby/term"
)

type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelDebug
	LogLevelDebugVerbose
)

// Options configures the Logger.
type Options struct {
	// Out is where we print logs. The tool keeps stdout for its machine
	// readable result, so this is normally os.Stderr.
	Out io.Writer

	// LogLevel controls the amount of logs printed.
	// error < info < warn < debug < debugVerbose; warnings print from info up.
	LogLevel LogLevel

	// Color forces styling on or off. When nil, styling is enabled only if
	// Out is a terminal.
	Color *bool

	// Component identifies the source of log messages.
	// If empty, no component tag is included in log output.
	Component string
}

// Logger prints leveled, timestamped lines.
type Logger struct {
	out       io.Writer
	mu        sync.Mutex
	style     styles
	color     bool
	component string

	logLevel LogLevel
}

type styles struct {
	logInfo  lipgloss.Style
	logWarn  lipgloss.Style
	logError lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		logInfo:  lipgloss.NewStyle(),
		logWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // orange-ish
		logError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // red
	}
}

// New creates a new Logger.
func New(opts Options) *Logger {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	color := isTerminal(opts.Out)
	if opts.Color != nil {
		color = *opts.Color
	}

	return &Logger{
		out:       opts.Out,
		style:     defaultStyles(),
		color:     color,
		logLevel:  opts.LogLevel,
		component: opts.Component,
	}
}

func isTerminal(w io.Writer) bool {
	if _, ok := w.(*os.File); !ok {
		return false
	}
	_, isTerm := term.GetFdInfo(w)
	return isTerm
}

func (l *Logger) Error(format string, args ...any) {
	l.printLog("ERR ", l.style.logError, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	if l.Level() >= LogLevelInfo {
		l.printLog("INFO", l.style.logInfo, format, args...)
	}
}

func (l *Logger) Warn(format string, args ...any) {
	if l.Level() >= LogLevelInfo {
		l.printLog("WARN", l.style.logWarn, format, args...)
	}
}

func (l *Logger) Debug(format string, args ...any) {
	if l.Level() >= LogLevelDebug {
		l.printLog("DEBG", l.style.logInfo, format, args...)
	}
}

func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logLevel = logLevel
}

func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logLevel
}

func (l *Logger) formatCaller(verbose bool, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if !verbose {
		return msg
	}
	pc, file, line, ok := runtime.Caller(4)
	if !ok {
		file = "?"
		line = 0
	}

	fn := runtime.FuncForPC(pc)
	var fnName string
	if fn != nil {
		fnName = strings.ReplaceAll(fn.Name(), "github.com/harvard-lil/docker-compose-update-action", "")
	}

	return fmt.Sprintf("[%s:%d %s] %s", filepath.Base(file), line, fnName, msg)
}

func (l *Logger) printLog(level string, style lipgloss.Style, format string, args ...any) {
	msg := l.formatCaller(l.Level() >= LogLevelDebugVerbose, format, args...)
	timestamp := time.Now().Format("2006-01-02T15:04:05.000")

	componentTag := ""
	if l.component != "" {
		componentTag = fmt.Sprintf("[%s] ", l.component)
	}

	line := fmt.Sprintf("[%s] [%s] %s%s", timestamp, level, componentTag, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.color {
		line = style.Render(line)
	}
	fmt.Fprintln(l.out, line)
}
