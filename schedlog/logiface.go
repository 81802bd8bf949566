package schedlog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// event is the minimal logiface.Event implementation schedlog ships so
// NewLogifaceLogger has a usable default without requiring callers to
// bring their own zerolog/stumpy/logrus binding.
type event struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	msg    string
	fields []Field
}

func (e *event) Level() logiface.Level { return e.level }

func (e *event) AddField(key string, val any) {
	e.fields = append(e.fields, Field{Key: key, Value: val})
}

type eventFactory struct {
	pool sync.Pool
}

func newEventFactory() *eventFactory {
	f := &eventFactory{}
	f.pool.New = func() any { return new(event) }
	return f
}

func (f *eventFactory) NewEvent(level logiface.Level) *event {
	e := f.pool.Get().(*event)
	e.level = level
	e.msg = ""
	e.fields = e.fields[:0]
	return e
}

func (f *eventFactory) ReleaseEvent(e *event) {
	f.pool.Put(e)
}

// lineWriter renders an *event as one structured text line. It is the
// logiface.Writer[*event] NewLogifaceLogger always installs; this package
// has no constructor that accepts a different writer.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) Write(e *event) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := fmt.Fprintf(lw.w, "%s %-5s %s", time.Now().Format(time.RFC3339Nano), levelName(e.level), e.msg)
	if err != nil {
		return err
	}
	for _, f := range e.fields {
		if _, err := fmt.Fprintf(lw.w, " %s=%v", f.Key, f.Value); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(lw.w)
	return err
}

func levelName(l logiface.Level) string {
	switch {
	case l <= logiface.LevelDebug:
		return "debug"
	case l <= logiface.LevelInformational:
		return "info"
	case l <= logiface.LevelWarning:
		return "warn"
	default:
		return "error"
	}
}

func toLogifaceLevel(l Level) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	default:
		return logiface.LevelError
	}
}

// logifaceLogger adapts a *logiface.Logger[logiface.Event] to the
// schedlog.Logger interface.
type logifaceLogger struct {
	inner *logiface.Logger[logiface.Event]
}

func (l *logifaceLogger) Enabled(level Level) bool {
	return l.inner.Level() >= toLogifaceLevel(level)
}

func (l *logifaceLogger) Log(level Level, msg string, fields ...Field) {
	b := l.inner.Build(toLogifaceLevel(level))
	for _, f := range fields {
		b = b.Field(f.Key, f.Value)
	}
	b.Log(msg)
}

// NewLogifaceLogger returns a schedlog.Logger backed by logiface, writing
// structured lines to w. It is not installed by default (the package-level
// default is NoOp); a caller installs it with SetGlobal or
// schedcore.WithLogger. It generalises the teacher's hand-rolled Logger
// to a real logiface pipeline.
func NewLogifaceLogger(w io.Writer, minLevel Level) Logger {
	factory := newEventFactory()
	writer := &lineWriter{w: w}
	typed := logiface.New[*event](
		logiface.WithEventFactory[*event](factory),
		logiface.WithEventReleaser[*event](factory),
		logiface.WithWriter[*event](writer),
		logiface.WithLevel[*event](toLogifaceLevel(minLevel)),
	)
	return &logifaceLogger{inner: typed.Logger()}
}
