package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestBuffer_SplitsLinesAndHoldsPartial(t *testing.T) {
	b := NewBuffer(10)
	_, _ = b.Write([]byte("one\ntw"))
	lines, _ := b.Tail(0)
	if len(lines) != 1 || lines[0] != "one" {
		t.Fatalf("lines=%q", lines)
	}
	_, _ = b.Write([]byte("o\r\n\nthree\n"))
	lines, _ = b.Tail(0)
	if strings.Join(lines, ",") != "one,two,three" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(b, "line %d\n", i)
	}
	lines, dropped := b.Tail(0)
	if dropped != 2 {
		t.Fatalf("dropped=%d want 2", dropped)
	}
	if len(lines) != 3 || lines[0] != "line 2" || lines[2] != "line 4" {
		t.Fatalf("lines=%q", lines)
	}
	lines, _ = b.Tail(1)
	if len(lines) != 1 || lines[0] != "line 4" {
		t.Fatalf("tail(1)=%q", lines)
	}
}

func TestLimited_SuppressesAndReports(t *testing.T) {
	var got []string
	l := &Limited{
		limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
		logf:    func(format string, args ...any) { got = append(got, fmt.Sprintf(format, args...)) },
	}
	if !l.Printf("bad packet n=%d", 1) {
		t.Fatalf("first line should pass")
	}
	for i := 0; i < 4; i++ {
		if l.Printf("bad packet n=%d", i+2) {
			t.Fatalf("line %d should be suppressed", i+2)
		}
	}
	if len(got) != 1 || got[0] != "bad packet n=1" {
		t.Fatalf("got=%q", got)
	}

	l.limiter = rate.NewLimiter(rate.Inf, 1)
	l.Printf("bad packet n=%d", 6)
	if len(got) != 2 || got[1] != "bad packet n=6 suppressed=4" {
		t.Fatalf("got=%q", got)
	}

	var nilLimited *Limited
	if nilLimited.Printf("x") {
		t.Fatalf("nil limiter should not log")
	}
}

func TestSetup_WritesBufferAndFile(t *testing.T) {
	prevOut, prevFlags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	path := filepath.Join(t.TempDir(), "papi.log")
	buf := NewBuffer(10)
	closer := Setup(Config{File: path, MaxSizeMB: 1}, buf)
	log.Printf("source switched name=%s", "xgps")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines, _ := buf.Tail(0)
	if len(lines) != 1 || !strings.Contains(lines[0], "source switched name=xgps") {
		t.Fatalf("buffer=%q", lines)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "source switched name=xgps") {
		t.Fatalf("file=%q", data)
	}
}
