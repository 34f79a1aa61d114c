package build

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the default maximum number of rotated log
	// files to keep on disk.
	DefaultMaxLogFiles = 3

	// DefaultMaxLogFileSize is the default maximum log file size in MB
	// before rotation occurs.
	DefaultMaxLogFileSize = 10

	// DefaultLogFilename is the log file name used when none is
	// configured.
	DefaultLogFilename = "actorctl.log"
)

// LogRotatorConfig holds the configuration for the log file rotator.
type LogRotatorConfig struct {
	// LogDir is the directory where log files are written.
	LogDir string

	// MaxLogFiles is the maximum number of rotated log files to keep.
	MaxLogFiles int

	// MaxLogFileSize is the maximum size of a log file in megabytes.
	MaxLogFileSize int

	// Filename overrides DefaultLogFilename.
	Filename string
}

// DefaultLogRotatorConfig returns the default rotation settings for logs
// written to dir.
func DefaultLogRotatorConfig(dir string) LogRotatorConfig {
	return LogRotatorConfig{
		LogDir:         dir,
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: DefaultMaxLogFileSize,
		Filename:       DefaultLogFilename,
	}
}

// Path returns the path of the active log file.
func (c LogRotatorConfig) Path() string {
	name := c.Filename
	if name == "" {
		name = DefaultLogFilename
	}

	return filepath.Join(c.LogDir, name)
}

// RotatingLogWriter is an io.WriteCloser feeding a jrick/logrotate rotator
// through a pipe. Rotated files are gzip compressed.
type RotatingLogWriter struct {
	pipe *io.PipeWriter
	done chan error
}

// NewRotatingLogWriter creates the log directory and starts the rotator.
func NewRotatingLogWriter(cfg LogRotatorConfig) (*RotatingLogWriter, error) {
	logFile := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w",
			err)
	}

	// The rotator takes its threshold in kilobytes.
	r, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false,
		cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	r.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	w := &RotatingLogWriter{
		pipe: pw,
		done: make(chan error, 1),
	}

	go func() {
		err := r.Run(pr)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
		w.done <- err
	}()

	return w, nil
}

// Write implements io.Writer.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	return w.pipe.Write(b)
}

// Close flushes pending writes and waits for the rotator to exit.
func (w *RotatingLogWriter) Close() error {
	if err := w.pipe.Close(); err != nil {
		return err
	}

	return <-w.done
}
