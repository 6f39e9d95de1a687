package logger

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// captureStdout redirects os.Stdout to a pipe for the duration of f and
// returns whatever was written to it. zerologLogger writes to os.Stdout
// directly, so this is the only way to assert on its JSON output.
func captureStdout(f func()) string {
	original := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	f()

	_ = w.Close()
	os.Stdout = original
	return <-done
}

func TestNewLoggerIsZerologBacked(t *testing.T) {
	l := NewLogger()
	assert.NotNil(t, l)
	assert.IsType(t, &zerologLogger{}, l)
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"garbage", zerolog.InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLevel(tc.input))
		})
	}
}

func TestNewLoggerWithLevelAppliesGlobalLevel(t *testing.T) {
	for _, level := range []string{"debug", "warn", "error", "disabled"} {
		t.Run(level, func(t *testing.T) {
			l := NewLoggerWithLevel(level)
			assert.NotNil(t, l)
			assert.Equal(t, parseLevel(level), zerolog.GlobalLevel())
		})
	}
}

func TestLogLevelsEmitExpectedSeverity(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cases := []struct {
		name    string
		logFunc func(Logger)
		level   string
	}{
		{"debug", func(l Logger) { l.Debug("debug message") }, "debug"},
		{"info", func(l Logger) { l.Info("info message") }, "info"},
		{"warn", func(l Logger) { l.Warn("warn message") }, "warn"},
		{"error", func(l Logger) { l.Error("error message") }, "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			output := captureStdout(func() {
				tc.logFunc(NewLogger())
			})
			assert.Contains(t, output, tc.name+" message")
			assert.Contains(t, output, `"level":"`+tc.level+`"`)
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := captureStdout(func() {
		l := NewLogger()
		l.Info("should be filtered out")
		l.Error("should pass through")
	})

	assert.NotContains(t, output, "should be filtered out")
	assert.Contains(t, output, "should pass through")
}

func TestWithFieldAttachesOneField(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := captureStdout(func() {
		l := NewLogger().WithField("request_id", "abc-123")
		l.Info("request received")
	})

	assert.Contains(t, output, "request received")
	assert.Contains(t, output, `"request_id":"abc-123"`)
}

func TestWithFieldChaining(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := captureStdout(func() {
		l := NewLogger().
			WithField("campaign_id", "camp-1").
			WithField("attempt", 3)
		l.Info("retry scheduled")
	})

	assert.Contains(t, output, `"campaign_id":"camp-1"`)
	assert.Contains(t, output, `"attempt":3`)
}

func TestWithFieldReturnsNewInstance(t *testing.T) {
	base := NewLogger()
	derived := base.WithField("k", "v")

	assert.NotSame(t, base.(*zerologLogger), derived.(*zerologLogger))
}

func TestWithFieldsAttachesBatch(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := captureStdout(func() {
		l := NewLogger().WithFields(map[string]interface{}{
			"recipient_count": 50,
			"dry_run":         false,
		})
		l.Info("campaign queued")
	})

	assert.Contains(t, output, "campaign queued")
	assert.Contains(t, output, `"recipient_count":50`)
	assert.Contains(t, output, `"dry_run":false`)
}

func TestWithFieldsEmptyMapIsANoop(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := captureStdout(func() {
		l := NewLogger().WithFields(map[string]interface{}{})
		l.Info("no extra fields")
	})

	assert.Contains(t, output, "no extra fields")
}

func TestWithFieldsReturnsNewInstance(t *testing.T) {
	base := NewLogger()
	derived := base.WithFields(map[string]interface{}{"field1": "value1"})

	assert.NotSame(t, base.(*zerologLogger), derived.(*zerologLogger))
}

// TestWithFieldsDoesNotMutateReceiver guards against the batch rewrite
// regressing into the receiver-mutating version: logging through base after
// deriving fields from it must not pick up those fields.
func TestWithFieldsDoesNotMutateReceiver(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	base := NewLogger()
	_ = base.WithFields(map[string]interface{}{"leaked": true})

	output := captureStdout(func() {
		base.Info("base logger after deriving a child")
	})

	assert.NotContains(t, output, "leaked")
}

func TestCombinedWithFieldAndWithFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	output := captureStdout(func() {
		l := NewLogger().
			WithFields(map[string]interface{}{"field1": "value1", "field2": "value2"}).
			WithField("field3", "value3")
		l.Info("combined fields message")
	})

	assert.Contains(t, output, `"field1":"value1"`)
	assert.Contains(t, output, `"field2":"value2"`)
	assert.Contains(t, output, `"field3":"value3"`)
}

// TestFatal exercises zerologLogger.Fatal in a subprocess: zerolog's fatal
// level calls os.Exit(1) directly, which would otherwise kill the test
// runner.
func TestFatal(t *testing.T) {
	if os.Getenv("LOGGER_FATAL_HELPER") == "1" {
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
		NewLogger().Fatal("fatal message")
		os.Exit(2) // unreachable if Fatal behaves
	}

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Skip("cannot determine test file location")
	}
	testDir := filepath.Dir(filename)

	binary := filepath.Join(testDir, "logger_fatal_helper")
	build := exec.Command("go", "test", "-c", "-o", binary, ".")
	build.Dir = testDir
	if err := build.Run(); err != nil {
		t.Skipf("cannot build fatal helper binary: %v", err)
	}
	defer func() { _ = os.Remove(binary) }()

	cmd := exec.Command(binary, "-test.run=^TestFatal$")
	cmd.Env = append(os.Environ(), "LOGGER_FATAL_HELPER=1")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	exitErr, isExitErr := err.(*exec.ExitError)
	assert.True(t, isExitErr, "expected helper process to exit non-zero, got err=%v", err)
	if isExitErr {
		assert.Equal(t, 1, exitErr.ExitCode())
	}
	assert.Contains(t, out.String(), "fatal message")
}
