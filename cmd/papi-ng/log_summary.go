package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"papi-ng/internal/gdl90"
	"papi-ng/internal/replay"
	"papi-ng/internal/xgps"
)

type logSummary struct {
	Segments     int
	Datagrams    int
	XGPS         int
	XGPSRejected int
	GDL90Frames  int
	GDL90Dropped int
	OwnshipFixes int
	// Unframed counts non-XGPS datagrams with no GDL90 frame in them.
	Unframed    int
	MaxDuration time.Duration
	MsgIDCounts map[byte]int
}

func summarizeReplayLog(records []replay.Record) logSummary {
	s := logSummary{MsgIDCounts: map[byte]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	segments := 0
	for _, r := range records {
		if r.IsStart() {
			segments++
			origin = r.At
			continue
		}

		s.Datagrams++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		if bytes.HasPrefix(r.Data, []byte(xgps.Tag)) {
			s.XGPS++
			if _, ok := xgps.Decode(r.Data, time.Time{}); !ok {
				s.XGPSRejected++
			}
			continue
		}

		dec := gdl90.DecodeBuffer(r.Data, time.Time{})
		s.GDL90Frames += dec.Frames
		s.GDL90Dropped += dec.Dropped
		s.OwnshipFixes += len(dec.Fixes)
		msgs := gdl90.Deframe(r.Data)
		if len(msgs) == 0 && dec.Dropped == 0 {
			s.Unframed++
		}
		for _, msg := range msgs {
			s.MsgIDCounts[msg[0]]++
		}
	}
	if segments == 0 && s.Datagrams > 0 {
		segments = 1
	}
	s.Segments = segments
	return s
}

func printLogSummary(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := replay.Load(path)
	if err != nil {
		return err
	}
	return writeLogSummary(os.Stdout, path, summarizeReplayLog(recs))
}

func writeLogSummary(w io.Writer, path string, s logSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "path: %s\n", path)
	fmt.Fprintf(&b, "segments: %d\n", s.Segments)
	fmt.Fprintf(&b, "datagrams: %d\n", s.Datagrams)
	fmt.Fprintf(&b, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(&b, "xgps: %d (rejected %d)\n", s.XGPS, s.XGPSRejected)
	fmt.Fprintf(&b, "gdl90_frames: %d (dropped %d)\n", s.GDL90Frames, s.GDL90Dropped)
	fmt.Fprintf(&b, "ownship_fixes: %d\n", s.OwnshipFixes)
	fmt.Fprintf(&b, "unframed_datagrams: %d\n", s.Unframed)

	keys := make([]int, 0, len(s.MsgIDCounts))
	for k := range s.MsgIDCounts {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	fmt.Fprintf(&b, "msg_id_counts:\n")
	for _, k := range keys {
		id := byte(k)
		fmt.Fprintf(&b, "  0x%02X: %d\n", id, s.MsgIDCounts[id])
	}
	_, err := io.WriteString(w, b.String())
	return err
}
