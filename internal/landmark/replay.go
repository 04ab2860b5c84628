package landmark

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"io"
	"sort"
	"time"

	apperrors "github.com/cliplab/autoframe/internal/errors"
)

// replayRecord is one line of a detection dump: everything an offline
// landmarker run recorded for a single frame.
type replayRecord struct {
	TimestampMs int64      `json:"timestamp_ms"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Faces       []wireFace `json:"faces"`
}

// Replay serves detections recorded offline, one JSON object per line,
// keyed by frame timestamp. It backs offline processing and tests; the
// frame image is ignored.
type Replay struct {
	records       []replayRecord
	minConfidence float64
	cursor        int
}

// NewReplay parses a JSONL detection dump. Records must be sorted by
// timestamp.
func NewReplay(r io.Reader, minConfidence float64) (*Replay, error) {
	var records []replayRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec replayRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeDecodeFailure, "detection dump line %d", line)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading detection dump")
	}
	if !sort.SliceIsSorted(records, func(i, j int) bool {
		return records[i].TimestampMs < records[j].TimestampMs
	}) {
		return nil, apperrors.New(apperrors.CodeDecodeFailure, "detection dump not sorted by timestamp")
	}
	return &Replay{records: records, minConfidence: minConfidence}, nil
}

// Timestamps returns the recorded frame timestamps in order.
func (r *Replay) Timestamps() []time.Duration {
	out := make([]time.Duration, len(r.records))
	for i, rec := range r.records {
		out[i] = time.Duration(rec.TimestampMs) * time.Millisecond
	}
	return out
}

// Detect returns the recorded detections closest to ts, or none when no
// record falls within the replay tolerance.
func (r *Replay) Detect(_ context.Context, _ image.Image, ts time.Duration) ([]Detection, error) {
	// Forward-only playback: advance the cursor past older records.
	for r.cursor+1 < len(r.records) && r.at(r.cursor+1) <= ts {
		r.cursor++
	}
	best := -1
	for _, i := range []int{r.cursor, r.cursor + 1} {
		if i < 0 || i >= len(r.records) {
			continue
		}
		if d := absDur(r.at(i) - ts); d <= replayTolerance {
			if best < 0 || absDur(r.at(i)-ts) < absDur(r.at(best)-ts) {
				best = i
			}
		}
	}
	if best < 0 {
		return nil, nil
	}

	rec := r.records[best]
	w, h := float64(rec.Width), float64(rec.Height)
	dets := make([]Detection, 0, len(rec.Faces))
	for _, f := range rec.Faces {
		if f.Confidence < r.minConfidence {
			continue
		}
		dets = append(dets, f.detection(w, h))
	}
	return dets, nil
}

// Close implements Detector; replays hold no resources.
func (r *Replay) Close() error { return nil }

func (r *Replay) at(i int) time.Duration {
	return time.Duration(r.records[i].TimestampMs) * time.Millisecond
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
