package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/backplot/backplot/internal/offsets"
	"github.com/backplot/backplot/internal/worker"
)

// replayRecord is one line of a replay file:
//
//	{"time":"2026-01-02T03:04:05Z","position":[1,2,3],"tool":1,"offsets":{"g5xIndex":1}}
type replayRecord struct {
	worker.Sample
	Offsets *offsets.Sample `json:"offsets,omitempty"`
}

// ReplaySource plays back recorded status from JSON lines. Offsets carry over
// from the last line that set them.
type ReplaySource struct {
	mu      sync.Mutex
	records []replayRecord
	next    int
	offsets *offsets.Sample
}

// NewReplaySource reads all records from r. Blank lines and lines starting with
// '#' are skipped.
func NewReplaySource(r io.Reader) (*ReplaySource, error) {
	src := &ReplaySource{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var rec replayRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		src.records = append(src.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return src, nil
}

// OpenReplay reads a replay file.
func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := NewReplaySource(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return src, nil
}

// Len returns the number of records.
func (s *ReplaySource) Len() int {
	return len(s.records)
}

func (s *ReplaySource) Poll(ctx context.Context) (worker.Sample, error) {
	if err := ctx.Err(); err != nil {
		return worker.Sample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.records) {
		return worker.Sample{}, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	if rec.Offsets != nil {
		s.offsets = rec.Offsets
	}
	return rec.Sample, nil
}

func (s *ReplaySource) PollOffsets(ctx context.Context) (offsets.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offsets == nil {
		return offsets.Sample{}, ErrNoOffsets
	}
	return *s.offsets, nil
}
