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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observe routes the global logger into an in-memory core for the rest
// of the test.
func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	core, logs := observer.New(level)
	prev := GetGlobalLogger()
	replaceGlobalLogger(zap.New(core))
	t.Cleanup(func() { replaceGlobalLogger(prev) })
	return logs
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := defaultLogConfig()
	require.Equal(t, "info", cfg.Level)
	require.Equal(t, "console", cfg.Format)
	require.Equal(t, defaultMaxSize, cfg.MaxSize)
	require.Empty(t, cfg.Filename)

	logger, err := initMOLogger(cfg)
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNamedLoggers(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Named("npo").Info("tree built", zap.Int("nodes", 3))
	Named("bench").Named("relation").Debug("generated")
	Infof("rounds %d", 2)

	all := logs.All()
	require.Len(t, all, 3)
	require.Equal(t, "npo", all[0].LoggerName)
	require.Equal(t, int64(3), all[0].ContextMap()["nodes"])
	require.Equal(t, "bench.relation", all[1].LoggerName)
	require.Equal(t, zapcore.DebugLevel, all[1].Level)
	require.Equal(t, 1, logs.FilterMessage("rounds 2").Len())
}

func TestEncoders(t *testing.T) {
	entry := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Date(2022, 3, 4, 5, 6, 7, 8000, time.UTC),
		LoggerName: "npo",
		Message:    "round done",
	}
	fields := []zapcore.Field{zap.Int("matches", 42), zap.Duration("elapsed", 1500*time.Millisecond)}

	buf, err := getLoggerEncoder("json").EncodeEntry(entry, fields)
	require.NoError(t, err)
	out := buf.String()
	for _, want := range []string{
		`"level":"WARN"`,
		`"time":"2022/03/04 05:06:07.000008 +0000"`,
		`"name":"npo"`,
		`"msg":"round done"`,
		`"matches":42`,
		`"elapsed":"1.5s"`,
	} {
		require.Contains(t, out, want)
	}

	buf, err = getLoggerEncoder("console").EncodeEntry(entry, fields)
	require.NoError(t, err)
	out = buf.String()
	require.True(t, strings.HasPrefix(out, "2022/03/04 05:06:07.000008 +0000 WARN npo round done"), out)
	require.Contains(t, out, `"matches": 42`)

	// an empty format is json
	buf, err = getLoggerEncoder("").EncodeEntry(entry, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(buf.String(), "{"))

	require.Panics(t, func() { getLoggerEncoder("xml") })
}

func TestRotation(t *testing.T) {
	cfg := &LogConfig{
		Level:      "debug",
		Format:     "json",
		Filename:   filepath.Join(t.TempDir(), "npj.log"),
		MaxDays:    3,
		MaxBackups: 2,
	}
	lj := cfg.rotation()
	defer lj.Close()
	require.Equal(t, cfg.Filename, lj.Filename)
	require.Equal(t, defaultMaxSize, lj.MaxSize)
	require.Equal(t, defaultMaxSize, cfg.MaxSize)
	require.Equal(t, 3, lj.MaxAge)
	require.Equal(t, 2, lj.MaxBackups)
	require.True(t, lj.LocalTime)
	require.False(t, lj.Compress)

	logger := GetLoggerWithOptions(cfg.getLevel(), cfg.getEncoder(), zapcore.AddSync(lj))
	logger.Named("npo").Debug("build done", zap.Int("buckets", 1024))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(cfg.Filename)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"build done"`)
	require.Contains(t, string(data), `"buckets":1024`)
}

func TestSetupMOLogger(t *testing.T) {
	defer SetupMOLogger(defaultLogConfig())

	SetupMOLogger(&LogConfig{Level: "warn", Format: "console", Filename: "console"})
	require.False(t, GetGlobalLogger().Core().Enabled(zapcore.InfoLevel))
	require.True(t, GetGlobalLogger().Core().Enabled(zapcore.WarnLevel))

	require.PanicsWithValue(t, "log file can't be a directory", func() {
		SetupMOLogger(&LogConfig{Level: "info", Format: "json", Filename: t.TempDir()})
	})
	require.Panics(t, func() {
		SetupMOLogger(&LogConfig{Level: "loud", Format: "json"})
	})
}

func TestStacktraceLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := &LogConfig{Level: "debug", Format: "json", StacktraceLevel: "error"}
	logger := zap.New(core, cfg.getOptions()...)
	logger.Warn("slow round")
	logger.Error("worker failed")
	all := logs.All()
	require.Len(t, all, 2)
	require.Empty(t, all[0].Stack)
	require.NotEmpty(t, all[1].Stack)
	require.True(t, all[1].Caller.Defined)

	cfg.StacktraceLevel = "nope"
	require.Panics(t, func() { cfg.getOptions() })
}
