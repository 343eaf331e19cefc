// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
)

// SetupMOLogger sets up the global logger for the benchmark process.
func SetupMOLogger(conf *LogConfig) {
	logger, err := initMOLogger(conf)
	if err != nil {
		panic(err)
	}
	replaceGlobalLogger(logger)
	Debugf("MO logger init, level=%s, log file=%s", conf.Level, conf.Filename)
}

func initMOLogger(cfg *LogConfig) (*zap.Logger, error) {
	return GetLoggerWithOptions(cfg.getLevel(), cfg.getEncoder(), cfg.getSyncer(), cfg.getOptions()...), nil
}

const defaultMaxSize = 512

// global zap logger for the whole process.
var _globalLogger atomic.Value

func init() {
	SetupMOLogger(defaultLogConfig())
}

// defaultLogConfig logs info and above to stderr until the process loads
// its own config.
func defaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:   zapcore.InfoLevel.String(),
		Format:  "console",
		MaxSize: defaultMaxSize,
	}
}

func GetGlobalLogger() *zap.Logger {
	return _globalLogger.Load().(*zap.Logger)
}

func replaceGlobalLogger(logger *zap.Logger) {
	_globalLogger.Store(logger)
}

// LogConfig is the config of the process logger.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
	// StacktraceLevel is the lowest level that records a stack trace,
	// fatal when empty.
	StacktraceLevel string `toml:"stacktrace-level"`
}

func (cfg *LogConfig) getSyncer() zapcore.WriteSyncer {
	if cfg.Filename == "" || cfg.Filename == "console" {
		return getConsoleSyncer()
	}

	if stat, err := os.Stat(cfg.Filename); err == nil {
		if stat.IsDir() {
			panic("log file can't be a directory")
		}
	}

	return zapcore.AddSync(cfg.rotation())
}

// rotation is the lumberjack writer behind a log file. MaxSize is in
// megabytes and falls back to defaultMaxSize.
func (cfg *LogConfig) rotation() *lumberjack.Logger {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultMaxSize
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}
}

func (cfg *LogConfig) getEncoder() zapcore.Encoder {
	return getLoggerEncoder(cfg.Format)
}

func (cfg *LogConfig) getLevel() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	err := level.UnmarshalText([]byte(cfg.Level))
	if err != nil {
		panic(err)
	}
	return level
}

func (cfg *LogConfig) getOptions() []zap.Option {
	stackLevel := zap.FatalLevel
	if cfg.StacktraceLevel != "" {
		if err := stackLevel.UnmarshalText([]byte(cfg.StacktraceLevel)); err != nil {
			panic(err)
		}
	}
	return []zap.Option{zap.AddStacktrace(stackLevel), zap.AddCaller()}
}

func GetLoggerWithOptions(level zapcore.LevelEnabler, encoder zapcore.Encoder, syncer zapcore.WriteSyncer, options ...zap.Option) *zap.Logger {
	if syncer == nil {
		syncer = getConsoleSyncer()
	}
	return zap.New(zapcore.NewCore(encoder, syncer, level), options...)
}

func getLoggerEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:    "msg",
		LevelKey:      "level",
		TimeKey:       "time",
		NameKey:       "name",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime: zapcore.TimeEncoder(func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006/01/02 15:04:05.000000 -0700"))
		}),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}

	switch format {
	case "json", "":
		return zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		return zapcore.NewConsoleEncoder(encoderConfig)
	default:
		panic(moerr.NewInternalError(context.Background(), "unsupported log format: %s", format))
	}
}

func getConsoleSyncer() zapcore.WriteSyncer {
	syncer, _, err := zap.Open("stderr")
	if err != nil {
		panic(err)
	}
	return syncer
}
