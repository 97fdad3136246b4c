package composables

import (
	"context"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// UseLogger returns the request-scoped logger, or an entry on the standard logger.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
