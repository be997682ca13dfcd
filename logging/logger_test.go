// File: logging/logger_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/momentics/camcore/logging"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"info", logging.LevelInfo, false},
		{"", logging.LevelInfo, false},
		{"WARN", logging.LevelWarn, false},
		{"warning", logging.LevelWarn, false},
		{"Error", logging.LevelError, false},
		{"verbose", logging.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := logging.ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr = %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWriter(logging.LevelWarn, &buf)

	l.Debugf("debug line")
	l.Infof("info line")
	l.Warnf("warn line")
	l.Errorf("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Fatalf("sub-threshold lines leaked: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Fatalf("expected warn and error lines, got: %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWriter(logging.LevelError, &buf)

	l.Infof("dropped")
	l.SetLevel(logging.LevelDebug)
	l.Debugf("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("line below old threshold leaked: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("line above new threshold missing: %q", out)
	}
}

func TestNopDoesNothing(t *testing.T) {
	logging.Nop.Debugf("x")
	logging.Nop.Infof("x")
	logging.Nop.Warnf("x")
	logging.Nop.Errorf("x")
}
