package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	filePrefix = "ghtracker_"
	fileSuffix = ".log"
)

// Options configures logging for one invocation
type Options struct {
	Dir           string // empty disables the log file
	Level         string // file level, default info
	RetentionDays int    // log files older than this are removed, 0 keeps everything
	Verbose       bool   // tee everything to the console instead of warnings only
	Console       io.Writer
	Now           func() time.Time
}

// RunLogger manages the log file of a single invocation
type RunLogger struct {
	Logger zerolog.Logger

	path      string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

// Setup opens <dir>/ghtracker_<YYYYMMDD_HHMMSS>.log, prunes old log files and returns a
// logger writing JSON to the file and human readable lines to the console
func Setup(opts Options) (*RunLogger, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	fileLevel := zerolog.InfoLevel
	if opts.Level != "" {
		lvl, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		fileLevel = lvl
	}
	consoleLevel := zerolog.WarnLevel
	if opts.Verbose {
		consoleLevel = zerolog.DebugLevel
	}

	r := &RunLogger{startTime: now()}
	writers := []io.Writer{
		levelFilter{w: zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}, min: consoleLevel},
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if opts.RetentionDays > 0 {
			// pruning is best effort, a failure is reported once the logger exists
			defer func() {
				if _, err := CleanupOldLogs(opts.Dir, time.Duration(opts.RetentionDays)*24*time.Hour, r.startTime); err != nil {
					r.Logger.Warn().Err(err).Msg("failed to remove old log files")
				}
			}()
		}

		r.path = filepath.Join(opts.Dir, filePrefix+r.startTime.Format("20060102_150405")+fileSuffix)
		logFile, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		r.logFile = logFile
		writers = append(writers, levelFilter{w: logFile, min: fileLevel})
	}

	minLevel := fileLevel
	if consoleLevel < minLevel {
		minLevel = consoleLevel
	}
	r.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(minLevel).
		With().Timestamp().Logger()

	r.Logger.Debug().Str("log_file", r.path).Strs("args", os.Args).Msg("ghtracker run started")
	return r, nil
}

// Path returns the log file path, empty when logging to the console only
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Close finalizes the log file
func (r *RunLogger) Close() error {
	if r == nil {
		return nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return nil
	}
	r.Logger.Debug().Dur("duration", time.Since(r.startTime)).Msg("ghtracker run finished")
	err := r.logFile.Close()
	r.logFile = nil
	return err
}

// CleanupOldLogs removes ghtracker log files in dir last modified more than retention
// before now and returns how many were removed
func CleanupOldLogs(dir string, retention time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-retention)
	removed := 0
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

// levelFilter drops events below min
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
