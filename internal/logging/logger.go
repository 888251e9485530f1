package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MalithGihan/opis-service/internal/config"
)

// New returns a logger writing human-readable lines to stderr and, when
// cfg.LogFile is set, JSON lines appended to the persistent run log.
// The returned func flushes and closes the file sink.
func New(cfg *config.Config) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	closeFn := func() {}
	if cfg.LogFile != "" {
		if dir := filepath.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
		closeFn = func() { _ = f.Close() }
	}

	log := zap.New(zapcore.NewTee(cores...))
	return log, func() {
		_ = log.Sync()
		closeFn()
	}, nil
}
