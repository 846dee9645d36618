// Package logger provides a convenience function to constructing a logger
// for use. This is required not just for applications but for testing.
package logger

import (
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateScheme is the output path scheme for a file that is rotated by size
// and age. For example "rotate:///var/log/node.log?maxsize=100&maxage=7".
const RotateScheme = "rotate"

var registerOnce sync.Once

// New constructs a Sugared Logger that writes to stdout and provides human
// readable timestamps. Additional output paths are passed through to zap,
// a path using the rotate scheme is written through lumberjack.
func New(service string, outputPaths ...string) (*zap.SugaredLogger, error) {
	var err error
	registerOnce.Do(func() {
		err = zap.RegisterSink(RotateScheme, rotateSink)
	})
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = append([]string{"stdout"}, outputPaths...)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	log, err := config.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

// =============================================================================

// rotator adds the Sync method zap requires from a sink.
type rotator struct {
	*lumberjack.Logger
}

// Sync is a no-op, lumberjack doesn't buffer writes.
func (rotator) Sync() error {
	return nil
}

// rotateSink constructs the lumberjack writer for an output path using the
// rotate scheme.
func rotateSink(u *url.URL) (zap.Sink, error) {
	lj := lumberjack.Logger{
		Filename: u.Path,
		MaxSize:  100,
		MaxAge:   7,
	}

	q := u.Query()
	if v := q.Get("maxsize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		lj.MaxSize = n
	}
	if v := q.Get("maxage"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		lj.MaxAge = n
	}

	return rotator{&lj}, nil
}
