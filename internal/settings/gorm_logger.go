package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// gormLogger routes gorm's logging into zap.
type gormLogger struct {
	logger *zap.Logger
	level  glog.LogLevel
}

func newGormLogger(logger *zap.Logger) *gormLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gormLogger{logger: logger.Named("settings.db"), level: glog.Warn}
}

func (l *gormLogger) LogMode(level glog.LogLevel) glog.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= glog.Info {
		l.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= glog.Warn {
		l.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= glog.Error {
		l.logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= glog.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= glog.Error:
		l.logger.Error("settings query failed", append(fields, zap.Error(err))...)
	case elapsed > slowQuery && l.level >= glog.Warn:
		l.logger.Warn("slow settings query", fields...)
	case l.level >= glog.Info:
		l.logger.Debug("settings query", fields...)
	}
}
