package logx

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"WARNING", LevelWarn, false},
		{" error ", LevelError, false},
		{"", LevelInfo, false},
		{"bad", LevelInfo, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.wantErr && err == nil {
			t.Fatalf("expected error for %q", c.in)
		}
		if !c.wantErr && err != nil {
			t.Fatalf("unexpected error for %q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestConfigurePrecedence(t *testing.T) {
	t.Setenv(envLogLevel, "warn")
	if err := Configure("", false); err != nil {
		t.Fatalf("configure env: %v", err)
	}
	if IsDebug() {
		t.Fatalf("expected non-debug from env warn")
	}
	if Logger().Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info disabled from env warn")
	}

	if err := Configure("", true); err != nil {
		t.Fatalf("configure verbose: %v", err)
	}
	if !IsDebug() {
		t.Fatalf("expected debug from verbose")
	}

	if err := Configure("error", true); err != nil {
		t.Fatalf("configure explicit: %v", err)
	}
	if IsDebug() {
		t.Fatalf("expected non-debug from explicit error")
	}
	if !Logger().Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected error enabled")
	}

	if err := Configure("loud", false); err == nil {
		t.Fatalf("expected error for invalid flag level")
	}

	t.Setenv(envLogLevel, "")
	if err := Configure("", false); err != nil {
		t.Fatalf("configure default: %v", err)
	}
	if !Logger().Core().Enabled(zapcore.InfoLevel) || IsDebug() {
		t.Fatalf("expected info default")
	}
}
