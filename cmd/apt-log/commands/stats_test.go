package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"DEVICE:",
		"STATE:",
		"MOT_MOVE_COMPLETED:",
		"HW_REQ_INFO:",
		"Connections: 2",
		"[abc12345]",
		"Moves: 1",
		"Remote: 127.0.0.1:50000",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestRunStatsEmptyLog(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("empty log should not print a time range")
	}
}
