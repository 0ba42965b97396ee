package synclog

import (
	"testing"
	"time"

	"github.com/personalrag/ragengine/domain/document"
)

func TestStart_InProgress(t *testing.T) {
	s := Start("sync-1", "u1", document.SourceEmail, ModeFull, time.Now())
	if s.Status != StatusInProgress {
		t.Errorf("Status = %v, want in_progress", s.Status)
	}
	if s.IsTerminal() {
		t.Error("freshly started sync should not be terminal")
	}
}

func TestSucceed_SetsTerminalFields(t *testing.T) {
	s := Start("sync-1", "u1", document.SourceEmail, ModeFull, time.Now())
	counters := Counters{Fetched: 3, Stored: 3}
	now := time.Now()
	s, err := s.Succeed(counters, now, now)
	if err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if s.Status != StatusSuccess {
		t.Errorf("Status = %v, want success", s.Status)
	}
	if !s.IsTerminal() {
		t.Error("succeeded sync should be terminal")
	}
	if s.Counters.Stored != 3 {
		t.Errorf("Counters.Stored = %d, want 3", s.Counters.Stored)
	}
}

func TestSucceed_RejectsAlreadyTerminal(t *testing.T) {
	s := Start("sync-1", "u1", document.SourceEmail, ModeFull, time.Now())
	now := time.Now()
	s, _ = s.Succeed(Counters{}, now, now)
	if _, err := s.Succeed(Counters{}, now, now); err == nil {
		t.Error("expected error transitioning an already-terminal SyncLog")
	}
}

func TestFail_PreservesPartialCounters(t *testing.T) {
	s := Start("sync-1", "u1", document.SourceEmail, ModeFull, time.Now())
	counters := Counters{Fetched: 3, Stored: 1, Failed: 2}
	s, err := s.Fail("boom", counters, time.Now())
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if s.Status != StatusFailed {
		t.Errorf("Status = %v, want failed", s.Status)
	}
	if s.Counters.Stored != 1 {
		t.Errorf("Counters.Stored = %d, want 1", s.Counters.Stored)
	}
	if s.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %v, want boom", s.ErrorMessage)
	}
}

func TestCancel_MarksCancellation(t *testing.T) {
	s := Start("sync-1", "u1", document.SourceEmail, ModeFull, time.Now())
	s, err := s.Cancel(Counters{Stored: 1}, time.Now())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !s.IsCancelled() {
		t.Error("expected IsCancelled to be true")
	}
}
