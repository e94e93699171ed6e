package database

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger sends gorm's output through logrus. Not-found reads and
// unique-key violations are expected outcomes (the in-flight slot is a
// unique index) and are logged at debug only.
type gormLogger struct {
	log  *logrus.Logger
	slow time.Duration
}

func newGormLogger(log *logrus.Logger) *gormLogger {
	return &gormLogger{log: log, slow: time.Second}
}

func (l *gormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.log.Infof(msg, args...)
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.log.Warnf(msg, args...)
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !expected(err):
		sql, rows := fc()
		l.log.WithError(err).WithFields(logrus.Fields{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed,
		}).Error("Database query failed")
	case elapsed > l.slow:
		sql, rows := fc()
		l.log.WithFields(logrus.Fields{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed,
		}).Warn("Slow database query")
	case l.log.IsLevelEnabled(logrus.DebugLevel):
		sql, rows := fc()
		l.log.WithFields(logrus.Fields{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed,
		}).WithError(err).Debug("Database query")
	}
}

func expected(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)
}
