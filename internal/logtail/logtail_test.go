package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestRead(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}
	if err := os.WriteFile(logPath, []byte(content.String()), 0o644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{"zero reads nothing", 0, nil},
		{"negative reads nothing", -1, nil},
		{"read partial (5)", 5, expectedAll[5:]},
		{"read exactly all (10)", 10, expectedAll},
		{"read more than exists (20)", 20, expectedAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil || got != nil {
		t.Fatalf("Read(missing) = %v, %v; want nil, nil", got, err)
	}
}

func TestParse_JSONLine(t *testing.T) {
	line := `{"level":"warn","ts":"2026-03-01T10:20:30.000Z","logger":"flowreader.ledger","caller":"ledger/ledger.go:1","msg":"mutation rolled back","article":"a1","error":"Request failed"}`
	e := Parse(line)

	if !e.JSON {
		t.Fatal("JSON = false for a JSON line")
	}
	if e.Level != zapcore.WarnLevel {
		t.Fatalf("Level = %v, want warn", e.Level)
	}
	want := time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC)
	if !e.Time.Equal(want) {
		t.Fatalf("Time = %v, want %v", e.Time, want)
	}
	if e.Logger != "flowreader.ledger" || e.Message != "mutation rolled back" {
		t.Fatalf("Logger/Message = %q/%q", e.Logger, e.Message)
	}
	if _, ok := e.Fields["caller"]; ok {
		t.Fatal("caller should not be kept as a field")
	}

	got := e.String()
	wantStr := want.Local().Format(time.TimeOnly) + " WARN  flowreader.ledger  mutation rolled back article=a1 error=Request failed"
	if got != wantStr {
		t.Fatalf("String() = %q, want %q", got, wantStr)
	}
}

func TestParse_PlainLine(t *testing.T) {
	e := Parse("not json at all")
	if e.JSON || e.Level != zapcore.InfoLevel {
		t.Fatalf("Parse(plain) = %+v", e)
	}
	if e.String() != "not json at all" {
		t.Fatalf("String() = %q", e.String())
	}
}

func TestTail_FiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowreader.log")
	lines := []string{
		`{"level":"debug","msg":"page loaded"}`,
		`{"level":"info","msg":"event stream connected"}`,
		``,
		`{"level":"error","msg":"resync failed"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := Tail(path, 10, zapcore.InfoLevel)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Tail() returned %d entries, want 2", len(entries))
	}
	if entries[0].Message != "event stream connected" || entries[1].Message != "resync failed" {
		t.Fatalf("Tail() = %+v", entries)
	}
}
