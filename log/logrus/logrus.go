// Package logrus adapts github.com/sirupsen/logrus to lockcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/lockcache"
)

var _ lockcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l. A nil l uses the logrus standard logger.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f lockcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f lockcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f lockcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f lockcache.Fields) { l.with(f).Error(msg) }

// with maps an error under "err" to logrus' error key.
func (l Logger) with(f lockcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
