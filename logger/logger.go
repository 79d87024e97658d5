package logger

import (
	"log/slog"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until Init runs so that
// packages can log from tests without setup.
var Log = zap.NewNop().Sugar()

type Options struct {
	Level       string
	Development bool
}

// Init builds the zap logger and routes the slog default logger into it.
func Init(opts Options) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			panic("invalid log level " + opts.Level + ": " + err.Error())
		}
	}

	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Set(z)
}

// Set swaps the underlying zap logger.
func Set(z *zap.Logger) {
	Log = z.Sugar()
	slog.SetDefault(slog.New(slogzap.Option{Logger: z}.NewZapHandler()))
}

// Sync flushes buffered entries, ignoring errors from stdout/stderr.
func Sync() {
	_ = Log.Sync()
}
