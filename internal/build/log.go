package build

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// ErrUnknownLevel is returned for log levels btclog does not know.
var ErrUnknownLevel = errors.New("unknown log level")

// LogManager owns the root handler of a process and the loggers created
// from it for every subsystem.
type LogManager struct {
	root    *HandlerSet
	file    io.Closer
	loggers map[string]btclogv2.Logger
}

// NewLogManager writes logs to console and, if rotation is non-nil, to a
// rotating log file.
func NewLogManager(console io.Writer,
	rotation *LogRotatorConfig) (*LogManager, error) {

	handlers := []btclogv2.Handler{btclogv2.NewDefaultHandler(console)}

	m := &LogManager{loggers: make(map[string]btclogv2.Logger)}
	if rotation != nil {
		w, err := NewRotatingLogWriter(*rotation)
		if err != nil {
			return nil, err
		}
		m.file = w
		handlers = append(handlers, btclogv2.NewDefaultHandler(w))
	}
	m.root = NewHandlerSet(handlers...)

	return m, nil
}

// Register creates the logger of a subsystem and hands it to use, which is
// typically the UseLogger function of the subsystem's package.
func (m *LogManager) Register(subsystem string,
	use func(btclogv2.Logger)) btclogv2.Logger {

	logger := btclogv2.NewSLogger(m.root.SubSystem(subsystem))
	logger.SetLevel(m.root.Level())
	m.loggers[subsystem] = logger
	use(logger)

	return logger
}

// Subsystems returns the registered subsystem tags in sorted order.
func (m *LogManager) Subsystems() []string {
	tags := make([]string, 0, len(m.loggers))
	for tag := range m.loggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}

// SetLevel parses a level like "debug" and applies it to every subsystem.
// A list of the form "ACTR=trace,SCHD=info" sets levels per subsystem.
func (m *LogManager) SetLevel(levels string) error {
	if !strings.Contains(levels, "=") {
		level, err := parseLevel(levels)
		if err != nil {
			return err
		}

		m.root.SetLevel(level)
		for _, logger := range m.loggers {
			logger.SetLevel(level)
		}

		return nil
	}

	for _, pair := range strings.Split(levels, ",") {
		tag, lvl, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLevel, pair)
		}

		logger, ok := m.loggers[tag]
		if !ok {
			return fmt.Errorf("unknown subsystem %q", tag)
		}

		level, err := parseLevel(lvl)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}

	return nil
}

func parseLevel(s string) (btclog.Level, error) {
	level, ok := btclog.LevelFromString(s)
	if !ok {
		return btclog.LevelOff, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}

	return level, nil
}

// Close flushes the log file, if any.
func (m *LogManager) Close() error {
	if m.file == nil {
		return nil
	}

	return m.file.Close()
}
