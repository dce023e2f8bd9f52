package logsvc

import (
	"sort"

	"go.uber.org/zap"

	"github.com/trezcool/tribunal/core"
)

// ZapLogger writes application events as structured logs.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a production (JSON) logger, or a development (console) one when debug is set.
func NewZapLogger(debug bool) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: z.Sugar()}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Sync() {
	_ = l.sugar.Sync()
}

// keysAndValues flattens args (fmt: error, map[string]interface{}, Author | Reviewer) into zap pairs.
func keysAndValues(args []interface{}) []interface{} {
	kv := make([]interface{}, 0, 2*len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case nil:
		case error:
			kv = append(kv, zap.Error(a))
		case map[string]interface{}:
			keys := make([]string, 0, len(a))
			for k := range a {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kv = append(kv, k, a[k])
			}
		case core.Author:
			kv = append(kv, "author", a.ID)
		case core.Reviewer:
			kv = append(kv, "reviewer", a.ID)
		default:
			kv = append(kv, "arg", a)
		}
	}
	return kv
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues(args)...)
}

func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, keysAndValues(args)...)
}

func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues(args)...)
}

func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues(args)...)
}

func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues(args)...)
}

