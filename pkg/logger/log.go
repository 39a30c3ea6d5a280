package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type LogStatus int

const (
	VERBOSE LogStatus = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

func (e LogStatus) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

func (e LogStatus) Level() int { return int(e) }

func (e LogStatus) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),                //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

type Logger interface {
	Emit(LogStatus, string, ...interface{})
}

// Listener receives every emitted message at or above the level it was
// attached with, after formatting.
type Listener func(status LogStatus, name string, message string)

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogStatus, message string, interpolations ...interface{}) {
	Log.Emit(status, l.name, message, interpolations...)
}

type LoggerManager interface {
	GetLogger(string) Logger
	Emit(LogStatus, string, string, ...interface{})
	AttachListener(Listener, LogStatus)
	SetMinLevel(int)
	SetOutput(io.Writer)
}

var Log LoggerManager = &loggerMgr{
	offset:   0,
	minLevel: INFO.Level(),
	output:   color.Output,
}

type loggerMgr struct {
	sync.Mutex
	offset    int
	minLevel  int
	output    io.Writer
	listeners []listenerEntry
}

type listenerEntry struct {
	min      LogStatus
	listener Listener
}

func (l *loggerMgr) GetLogger(name string) Logger {
	return &loggerImpl{name: name}
}

func (l *loggerMgr) AttachListener(listener Listener, minimum LogStatus) {
	l.Lock()
	defer l.Unlock()
	l.listeners = append(l.listeners, listenerEntry{min: minimum, listener: listener})
}

func (l *loggerMgr) SetMinLevel(level int) {
	l.Lock()
	defer l.Unlock()
	l.minLevel = level
}

func (l *loggerMgr) SetOutput(w io.Writer) {
	l.Lock()
	defer l.Unlock()
	l.output = w
}

func (l *loggerMgr) Emit(status LogStatus, name string, message string, interpolations ...interface{}) {
	l.Lock()
	defer l.Unlock()

	formatted := fmt.Sprintf(message, interpolations...)
	for _, entry := range l.listeners {
		if status >= entry.min {
			entry.listener(status, name, strings.TrimRight(formatted, "\n"))
		}
	}

	if status.Level() < l.minLevel {
		return
	}

	l.setNameOffset(len(name))
	padding := strings.Repeat(" ", l.offset-len(name))
	msg := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, formatted)

	status.Color().Fprint(l.output, msg)
}

func (l *loggerMgr) setNameOffset(offset int) {
	if offset > l.offset {
		l.offset = offset
	}
}

func Get(name string) Logger {
	return Log.GetLogger(name)
}

// SetMinLoggingLevel suppresses console output for messages below the given level.
// Listeners are unaffected.
func SetMinLoggingLevel(level int) {
	Log.SetMinLevel(level)
}
