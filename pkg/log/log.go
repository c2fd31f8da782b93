// Copyright The irqd Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"log/syslog"
	"os"
	"os/signal"
	"sync"
)

// Level describes the severity of a log message.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
)

// DefaultLevel is the default logging severity level.
const DefaultLevel = LevelInfo

// Logger is the interface for producing log messages for a source.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(format string, args ...interface{})
	DebugEnabled() bool
	Source() string
}

// logging encapsulates the state of all loggers.
type logging struct {
	sync.RWMutex
	level   Level
	loggers map[string]logger
	dbgmap  map[string]bool
	forced  bool // all-source debugging forced (SIGUSR1 toggle)
	stderr  bool
	syslog  *syslog.Writer
}

// logger implements Logger for a single source.
type logger struct {
	source string
}

var log = &logging{
	level:   DefaultLevel,
	loggers: make(map[string]logger),
	dbgmap:  make(map[string]bool),
	stderr:  true,
}

// Get returns the logger for the given source, creating it if necessary.
func Get(source string) Logger {
	log.Lock()
	defer log.Unlock()
	return log.get(source)
}

// NewLogger creates a logger for the given source. An alias for Get.
func NewLogger(source string) Logger {
	return Get(source)
}

// Default returns the default logger.
func Default() Logger {
	return Get("irqd")
}

func (l *logging) get(source string) logger {
	lgr, ok := l.loggers[source]
	if !ok {
		lgr = logger{source: source}
		l.loggers[source] = lgr
	}
	return lgr
}

// SetLevel sets the minimum severity of messages to pass through.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// EnableDebug enables or disables debug messages for the given source.
// Source "*" matches all sources.
func EnableDebug(source string, enabled bool) {
	log.Lock()
	defer log.Unlock()
	log.dbgmap[source] = enabled
}

// SetStderr enables or disables logging to standard error.
func SetStderr(enabled bool) {
	log.Lock()
	defer log.Unlock()
	log.stderr = enabled
}

// SetSyslog connects the loggers to syslog with the given facility and tag.
func SetSyslog(facility, tag string) error {
	prio, ok := facilities[facility]
	if !ok {
		return loggerError("unknown syslog facility %q", facility)
	}

	w, err := syslog.New(prio|syslog.LOG_INFO, tag)
	if err != nil {
		return loggerError("can't connect to syslog: %v", err)
	}

	log.Lock()
	defer log.Unlock()
	log.syslog = w
	return nil
}

// SetupDebugToggleSignal arranges the given signal to toggle full debugging.
func SetupDebugToggleSignal(sig os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)
	go func() {
		for range ch {
			log.Lock()
			log.forced = !log.forced
			state := log.forced
			log.Unlock()
			Default().Info("forced debugging turned %v", map[bool]string{
				true: "on", false: "off"}[state])
		}
	}()
}

// KnownFacility returns true if the given syslog facility name is known.
func KnownFacility(facility string) bool {
	_, ok := facilities[facility]
	return ok
}

var facilities = map[string]syslog.Priority{
	"KERN":   syslog.LOG_KERN,
	"USER":   syslog.LOG_USER,
	"MAIL":   syslog.LOG_MAIL,
	"DAEMON": syslog.LOG_DAEMON,
	"AUTH":   syslog.LOG_AUTH,
	"SYSLOG": syslog.LOG_SYSLOG,
	"LPR":    syslog.LOG_LPR,
	"NEWS":   syslog.LOG_NEWS,
	"UUCP":   syslog.LOG_UUCP,
	"CRON":   syslog.LOG_CRON,
	"LOCAL0": syslog.LOG_LOCAL0,
	"LOCAL1": syslog.LOG_LOCAL1,
	"LOCAL2": syslog.LOG_LOCAL2,
	"LOCAL3": syslog.LOG_LOCAL3,
	"LOCAL4": syslog.LOG_LOCAL4,
	"LOCAL5": syslog.LOG_LOCAL5,
	"LOCAL6": syslog.LOG_LOCAL6,
	"LOCAL7": syslog.LOG_LOCAL7,
}

func (l logger) debugEnabled() bool {
	if log.forced {
		return true
	}
	if enabled, ok := log.dbgmap[l.source]; ok {
		return enabled
	}
	if enabled, ok := log.dbgmap["*"]; ok {
		return enabled
	}
	return log.level <= LevelDebug
}

// DebugEnabled returns true if debug messages of this source pass through.
func (l logger) DebugEnabled() bool {
	log.RLock()
	defer log.RUnlock()
	return l.debugEnabled()
}

// Source returns the source of this logger.
func (l logger) Source() string {
	return l.source
}

func (l logger) emit(level Level, format string, args ...interface{}) {
	log.RLock()
	defer log.RUnlock()

	if level < log.level && !(level == LevelDebug && l.debugEnabled()) {
		return
	}
	if level == LevelDebug && !l.debugEnabled() {
		return
	}

	msg := fmt.Sprintf("%s: %s", l.source, fmt.Sprintf(format, args...))

	if log.stderr {
		fmt.Fprintf(os.Stderr, "%s %s\n", levelTags[level], msg)
	}
	if log.syslog != nil {
		switch level {
		case LevelDebug:
			log.syslog.Debug(msg)
		case LevelInfo:
			log.syslog.Info(msg)
		case LevelWarn:
			log.syslog.Warning(msg)
		case LevelError:
			log.syslog.Err(msg)
		}
	}
}

var levelTags = map[Level]string{
	LevelDebug: "D:",
	LevelInfo:  "I:",
	LevelWarn:  "W:",
	LevelError: "E:",
}

// Debug logs a debug message.
func (l logger) Debug(format string, args ...interface{}) {
	l.emit(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l logger) Info(format string, args ...interface{}) {
	l.emit(LevelInfo, format, args...)
}

// Warn logs a warning.
func (l logger) Warn(format string, args ...interface{}) {
	l.emit(LevelWarn, format, args...)
}

// Error logs an error.
func (l logger) Error(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
}

func (l logger) Debugf(format string, args ...interface{}) { l.Debug(format, args...) }
func (l logger) Infof(format string, args ...interface{})  { l.Info(format, args...) }
func (l logger) Warnf(format string, args ...interface{})  { l.Warn(format, args...) }
func (l logger) Errorf(format string, args ...interface{}) { l.Error(format, args...) }

// Fatal logs an error and exits the process.
func (l logger) Fatal(format string, args ...interface{}) {
	l.emit(LevelError, format, args...)
	os.Exit(1)
}

// loggerError returns a formatted logger-specific error.
func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}
