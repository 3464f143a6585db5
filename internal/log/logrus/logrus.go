package logrus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/taskly/trackd/internal/log"
)

// NewLogrus returns a new log.Logger backed by a logrus entry.
func NewLogrus(entry *logrus.Entry) log.Logger {
	return logger{Entry: entry}
}

type logger struct {
	*logrus.Entry
}

func (l logger) Warningf(format string, args ...any) { l.Warnf(format, args...) }

func (l logger) WithValues(values map[string]any) log.Logger {
	return logger{Entry: l.Entry.WithFields(values)}
}

func (l logger) WithCtxValues(ctx context.Context) log.Logger {
	return l.WithValues(log.ValuesFromCtx(ctx))
}

func (l logger) SetValuesOnCtx(parent context.Context, values map[string]any) context.Context {
	return log.CtxWithValues(parent, values)
}
