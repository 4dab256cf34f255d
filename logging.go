package gorepl

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the session logger. The terminal belongs to the REPL,
// so logs go to a file under the data directory; without debug mode the
// logger is a no-op.
func NewLogger(dataDir string, debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dataDir, logFileName),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(f),
		zap.DebugLevel,
	)
	return zap.New(core), nil
}
