package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// test seams for stdout capture
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional GELF and OTel outputs.
// The dynamic state callbacks enrich every record with live daemon state; they
// are optional and may be set after construction but before heavy logging.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider

	// optional GELF output, see EnableGelf
	gelfHandler slog.Handler

	// Dynamic context callbacks, attached to every record when non-nil.
	GetSessionName func() string
	GetMode        func() string
	IsUsingLocalDB func() bool
	IsLoopRunning  func() bool
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. When file is non-nil records go to the
// file instead of stdout, so daemon output stays clean for CLI verbs. If
// provider is nil, OTel logging is disabled. Calling Setup again replaces the
// previous handler chain.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)
	m.logProvider = provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	// Build list of handlers
	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	// GELF handler (if enabled via EnableGelf)
	if m.gelfHandler != nil {
		handlers = append(handlers, m.gelfHandler)
	}

	// OTel handler (if provider is available)
	if provider != nil {
		otelHandler := otelslog.NewHandler("drived", otelslog.WithLoggerProvider(provider))
		handlers = append(handlers, otelHandler)
	}

	multiHandler := NewMultiHandler(handlers...)

	m.logger = slog.New(NewContextHandler(multiHandler, m.contextAttrs))
	m.logger.Info("Logging initialized", "level", level)
}

// EnableGelf connects a GELF/Graylog output. Takes effect on the next Setup
// call so it can be configured before the final handler chain is built.
func (m *SlogManager) EnableGelf(address string) error {
	h, err := newGelfHandler(address)
	if err != nil {
		return err
	}
	m.gelfHandler = h
	return nil
}

// contextAttrs collects the dynamic daemon state for the ContextHandler.
func (m *SlogManager) contextAttrs() []slog.Attr {
	var attrs []slog.Attr
	if m.GetSessionName != nil {
		if name := m.GetSessionName(); name != "" {
			attrs = append(attrs, slog.String("session", name))
		}
	}
	if m.GetMode != nil {
		if mode := m.GetMode(); mode != "" {
			attrs = append(attrs, slog.String("mode", mode))
		}
	}
	if m.IsUsingLocalDB != nil {
		attrs = append(attrs, slog.Bool("localDb", m.IsUsingLocalDB()))
	}
	if m.IsLoopRunning != nil {
		attrs = append(attrs, slog.Bool("loopRunning", m.IsLoopRunning()))
	}
	return attrs
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry with the specified source name, data, and level.
// Wire command handlers report through this so their log lines carry the
// command constant they served.
func (m *SlogManager) WriteLog(source, data, level string) {
	if m.logger == nil {
		return
	}

	lvl := parseLevel(level)

	switch lvl {
	case slog.LevelDebug:
		m.logger.Debug(data, "source", source)
	case slog.LevelInfo:
		m.logger.Info(data, "source", source)
	case slog.LevelWarn:
		m.logger.Warn(data, "source", source)
	case slog.LevelError:
		m.logger.Error(data, "source", source)
	default:
		m.logger.Info(data, "source", source)
	}
}
