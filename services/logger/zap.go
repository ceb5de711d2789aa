// Package logsvc implements core.Logger with zap, optionally reporting to Rollbar.
package logsvc

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

type ZapLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger logs human-friendly lines in debug mode and JSON otherwise.
func NewZapLogger(conf *core.Config) (*ZapLogger, error) {
	var zc zap.Config
	if conf.Debug {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}
	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	zl = zl.With(zap.String("app", conf.AppName), zap.String("env", conf.Env), zap.String("build", conf.Build))
	return &ZapLogger{zl: zl}, nil
}

func NewNopLogger() *ZapLogger {
	return &ZapLogger{zl: zap.NewNop()}
}

// Zap exposes the underlying logger, eg. for request logs.
func (l *ZapLogger) Zap() *zap.Logger { return l.zl }

func (l *ZapLogger) Sync() error { return l.zl.Sync() }

// fields converts the args of a log call: error, map[string]interface{} of extras, user.User.
func fields(args []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			fs = append(fs, zap.Error(v))
		case map[string]interface{}:
			for k, val := range v {
				fs = append(fs, zap.Any(k, val))
			}
		case user.User:
			fs = append(fs, zap.String("user_id", v.ID), zap.String("user_email", v.Email))
		case *user.User:
			if v != nil {
				fs = append(fs, zap.String("user_id", v.ID), zap.String("user_email", v.Email))
			}
		default:
			fs = append(fs, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return fs
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.zl.Debug(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.zl.Info(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.zl.Warn(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.zl.Error(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.zl.Fatal(msg, fields(args)...) }
