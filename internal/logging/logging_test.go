package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLineLoggerFiltersBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelWarn)

	l.Debugf("quiet %d", 1)
	l.Infof("quiet %d", 2)
	l.Warnf("loud %d", 3)
	l.Errorf("loud %d", 4)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("messages below minimum were emitted:\n%s", out)
	}
	if !strings.Contains(out, "WARN loud 3") || !strings.Contains(out, "ERROR loud 4") {
		t.Fatalf("messages at/above minimum missing:\n%s", out)
	}
}

func TestFatalfBypassesMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelError)

	l.Fatalf("broken: %s", "disk")
	if !strings.Contains(buf.String(), "FATAL broken: disk") {
		t.Fatalf("fatal message missing:\n%s", buf.String())
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	// Just exercise every method; Discard must not panic or block.
	Discard.Errorf("e")
	Discard.Warnf("w")
	Discard.Infof("i")
	Discard.Debugf("d")
	Discard.Fatalf("f")
}
