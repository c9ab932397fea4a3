// Package roslog is a small leveled logger, adapted from the
// sandia-minimega/minimega minilog package for use inside a node runtime
// with no central configuration file: callers add sinks explicitly with
// AddLogger.
package roslog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "FATAL"
	}
}

type sink interface {
	Println(...interface{})
}

type writerSink struct {
	w io.Writer
}

func (s *writerSink) Println(v ...interface{}) {
	fmt.Fprintln(s.w, v...)
}

type logger struct {
	sink  sink
	level Level
}

var (
	mu      sync.Mutex
	loggers = map[string]*logger{}
)

// AddLogger registers a named log sink at the given level. Re-adding the
// same name replaces the previous sink.
func AddLogger(name string, w io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()

	loggers[name] = &logger{sink: &writerSink{w: w}, level: level}
}

// AddSink registers a named sink that implements Println directly, such
// as a Ring.
func AddSink(name string, s sink, level Level) {
	mu.Lock()
	defer mu.Unlock()

	loggers[name] = &logger{sink: s, level: level}
}

// DelLogger removes a previously registered sink.
func DelLogger(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(loggers, name)
}

// WillLog reports whether any registered sink would emit a message at
// the given level. Callers use this to skip expensive formatting.
func WillLog(level Level) bool {
	mu.Lock()
	defer mu.Unlock()

	for _, l := range loggers {
		if level >= l.level {
			return true
		}
	}
	return false
}

func callerPrefix() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return ""
	}
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return short + ":" + strconv.Itoa(line) + ": "
}

func dispatch(level Level, msg string) {
	mu.Lock()
	ls := make([]*logger, 0, len(loggers))
	for _, l := range loggers {
		ls = append(ls, l)
	}
	mu.Unlock()

	line := level.String() + " " + callerPrefix() + msg

	for _, l := range ls {
		if level >= l.level {
			l.sink.Println(line)
		}
	}
}

func Debug(format string, args ...interface{}) { dispatch(DEBUG, fmt.Sprintf(format, args...)) }
func Info(format string, args ...interface{})  { dispatch(INFO, fmt.Sprintf(format, args...)) }
func Warn(format string, args ...interface{})  { dispatch(WARN, fmt.Sprintf(format, args...)) }
func Error(format string, args ...interface{}) { dispatch(ERROR, fmt.Sprintf(format, args...)) }

func Debugln(args ...interface{}) { dispatch(DEBUG, strings.TrimRight(fmt.Sprintln(args...), "\n")) }
func Infoln(args ...interface{})  { dispatch(INFO, strings.TrimRight(fmt.Sprintln(args...), "\n")) }
func Warnln(args ...interface{})  { dispatch(WARN, strings.TrimRight(fmt.Sprintln(args...), "\n")) }
func Errorln(args ...interface{}) { dispatch(ERROR, strings.TrimRight(fmt.Sprintln(args...), "\n")) }

// Fatal logs at FATAL to every sink and then exits the process. Engine
// code should essentially never call this; it exists for the rare
// unrecoverable startup failure, matching the teacher's minilog.Fatal.
func Fatal(format string, args ...interface{}) {
	dispatch(FATAL, fmt.Sprintf(format, args...))
	os.Exit(1)
}
