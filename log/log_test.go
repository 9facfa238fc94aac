package log

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoggerLevels(t *testing.T) {
	type logTest struct {
		with       []interface{}
		level      int
		allowedLvl int
		msg        string
		out        []string
	}

	w := func(kv ...interface{}) []interface{} {
		return kv
	}
	o := func(outs ...string) []string {
		return outs
	}
	var tests = []logTest{
		{nil, InfoLevel, InfoLevel, "hello", o("hello")},
		{nil, DebugLevel, InfoLevel, "hello", nil},
		{nil, ErrorLevel, DebugLevel, "hello", o("hello")},
		{nil, WarnLevel, ErrorLevel, "hello", nil},
		{nil, WarnLevel, DebugLevel, "hello", o("hello")},
		{w("yard", "bird"), WarnLevel, InfoLevel, "hello", o("yard", "bird", "hello")},
	}

	for i, test := range tests {
		t.Logf(" -- test %d -- \n", i)

		var b bytes.Buffer
		writer := bufio.NewWriter(&b)
		syncer := zapcore.AddSync(writer)

		var logging func(...interface{})
		logger := New(syncer, test.allowedLvl, true)

		if test.with != nil {
			logger = logger.With(test.with...)
		}

		switch test.level {
		case InfoLevel:
			logging = logger.Info
		case DebugLevel:
			logging = logger.Debug
		case WarnLevel:
			logging = logger.Warn
		case ErrorLevel:
			logging = logger.Error
		default:
			t.FailNow()
		}

		logging(test.msg)
		require.NoError(t, writer.Flush())

		written := b.String()
		if test.out == nil {
			require.Empty(t, written)
			continue
		}
		for _, expected := range test.out {
			require.True(t, strings.Contains(written, expected), "missing %q in %q", expected, written)
		}
	}
}

func TestNamedLogger(t *testing.T) {
	var b bytes.Buffer
	writer := bufio.NewWriter(&b)
	logger := New(zapcore.AddSync(writer), InfoLevel, true).Named("reveal")
	logger.Infow("request issued", "id", 42)
	require.NoError(t, writer.Flush())
	require.Contains(t, b.String(), "reveal")
	require.Contains(t, b.String(), "request issued")
}
