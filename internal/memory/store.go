// Package memory suppresses re-execution of effectively identical requests
// within a retention window, without caller-supplied identifiers.
//
// Requests are matched first by signature (a hash of the normalized text) and
// then by word-set similarity against every in-window record. Records are
// append-only and persisted as JSON files that are rewritten wholesale on each
// mutation.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	recordsFile    = "records.json"
	signaturesFile = "signatures.json"
)

// MatchType describes how a verdict was reached.
type MatchType string

const (
	MatchExact          MatchType = "exact"
	MatchSimilar        MatchType = "similar"
	MatchBelowThreshold MatchType = "below_threshold"
	MatchNone           MatchType = "none"
)

// Record is one remembered run.
type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	RequestText      string    `json:"request_text"`
	RequestSignature string    `json:"request_signature"`
	Success          bool      `json:"success"`
	ExecutionID      string    `json:"execution_id"`
	DomainsTouched   []string  `json:"domains_touched,omitempty"`
}

// SignatureStats is kept for reporting only; it never affects a verdict.
type SignatureStats struct {
	Signature    string    `json:"signature"`
	SampleText   string    `json:"sample_text"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Count        int       `json:"count"`
	SuccessCount int       `json:"success_count"`
}

// Verdict is the result of checking a request against memory.
type Verdict struct {
	ShouldSkip bool      `json:"should_skip"`
	MatchType  MatchType `json:"match_type"`
	Similarity float64   `json:"similarity"`
	Signature  string    `json:"signature"`
	Match      *Record   `json:"match,omitempty"`
	Reason     string    `json:"reason"`
}

// Options configures a Store.
type Options struct {
	Retention           time.Duration
	SimilarityThreshold float64
	// CandidateFloor is the lowest similarity still reported as a candidate.
	CandidateFloor float64
	// Now is overridable for tests.
	Now func() time.Time
}

// DefaultOptions returns a 30 day window, 0.8 threshold and 0.5 floor.
func DefaultOptions() Options {
	return Options{
		Retention:           30 * 24 * time.Hour,
		SimilarityThreshold: 0.8,
		CandidateFloor:      0.5,
		Now:                 time.Now,
	}
}

// Store is the memory subsystem. All mutations happen under one mutex so
// that load-mutate-save is a single critical section.
type Store struct {
	dir  string
	opts Options

	mu         sync.Mutex
	records    []Record
	signatures map[string]*SignatureStats
}

// Open loads (or initialises) the store in dir and prunes expired entries.
// An empty dir keeps everything in memory.
func Open(dir string, opts Options) (*Store, error) {
	def := DefaultOptions()
	if opts.Retention <= 0 {
		opts.Retention = def.Retention
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = def.SimilarityThreshold
	}
	if opts.CandidateFloor <= 0 {
		opts.CandidateFloor = def.CandidateFloor
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	s := &Store{
		dir:        dir,
		opts:       opts,
		signatures: make(map[string]*SignatureStats),
	}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := readJSON(filepath.Join(dir, recordsFile), &s.records); err != nil {
		return nil, err
	}
	var stats []*SignatureStats
	if err := readJSON(filepath.Join(dir, signaturesFile), &stats); err != nil {
		return nil, err
	}
	for _, st := range stats {
		s.signatures[st.Signature] = st
	}
	if s.pruneLocked() {
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Check decides whether text near-duplicates a recent request.
func (s *Store) Check(text string) Verdict {
	sig := Signature(text)
	cutoff := s.opts.Now().Add(-s.opts.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Timestamp.Before(cutoff) {
			continue
		}
		if r.RequestSignature == sig {
			match := r
			return Verdict{
				ShouldSkip: true,
				MatchType:  MatchExact,
				Similarity: 1.0,
				Signature:  sig,
				Match:      &match,
				Reason:     fmt.Sprintf("identical request already ran at %s", r.Timestamp.Format(time.RFC3339)),
			}
		}
	}

	var best *Record
	bestScore := 0.0
	for i := range s.records {
		r := s.records[i]
		if r.Timestamp.Before(cutoff) {
			continue
		}
		score := Similarity(text, r.RequestText)
		if score >= s.opts.CandidateFloor && score > bestScore {
			match := r
			best, bestScore = &match, score
		}
	}

	switch {
	case best == nil:
		return Verdict{MatchType: MatchNone, Signature: sig, Reason: "no similar request in window"}
	case bestScore >= s.opts.SimilarityThreshold:
		return Verdict{
			ShouldSkip: true,
			MatchType:  MatchSimilar,
			Similarity: bestScore,
			Signature:  sig,
			Match:      best,
			Reason:     fmt.Sprintf("similar request (%.2f) already ran at %s", bestScore, best.Timestamp.Format(time.RFC3339)),
		}
	default:
		return Verdict{
			MatchType:  MatchBelowThreshold,
			Similarity: bestScore,
			Signature:  sig,
			Match:      best,
			Reason:     fmt.Sprintf("closest request scored %.2f, below threshold %.2f", bestScore, s.opts.SimilarityThreshold),
		}
	}
}

// Record appends r and persists both collections.
func (s *Store) Record(r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.opts.Now()
	}
	if r.RequestSignature == "" {
		r.RequestSignature = Signature(r.RequestText)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	st, ok := s.signatures[r.RequestSignature]
	if !ok {
		st = &SignatureStats{
			Signature:  r.RequestSignature,
			SampleText: r.RequestText,
			FirstSeen:  r.Timestamp,
		}
		s.signatures[r.RequestSignature] = st
	}
	st.LastSeen = r.Timestamp
	st.Count++
	if r.Success {
		st.SuccessCount++
	}
	return s.saveLocked()
}

// Records returns a copy of all in-memory records, oldest first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Stats returns the signature index ordered by most recently seen.
func (s *Store) Stats() []SignatureStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SignatureStats, 0, len(s.signatures))
	for _, st := range s.signatures {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Prune drops records outside the window and unreferenced signatures.
func (s *Store) Prune() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pruneLocked() {
		return nil
	}
	return s.saveLocked()
}

func (s *Store) pruneLocked() bool {
	cutoff := s.opts.Now().Add(-s.opts.Retention)
	kept := s.records[:0]
	referenced := make(map[string]bool)
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
		referenced[r.RequestSignature] = true
	}
	changed := len(kept) != len(s.records)
	s.records = kept
	for sig := range s.signatures {
		if !referenced[sig] {
			delete(s.signatures, sig)
			changed = true
		}
	}
	if changed {
		log.Printf("[memory] pruned store to %d records, %d signatures", len(s.records), len(s.signatures))
	}
	return changed
}

func (s *Store) saveLocked() error {
	if s.dir == "" {
		return nil
	}
	if err := writeJSON(filepath.Join(s.dir, recordsFile), s.records); err != nil {
		return err
	}
	stats := make([]*SignatureStats, 0, len(s.signatures))
	for _, st := range s.signatures {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Signature < stats[j].Signature })
	return writeJSON(filepath.Join(s.dir, signaturesFile), stats)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
