package state

import (
	"testing"
	"time"
)

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := &Run{System: "harbor", Model: "m", Fingerprint: "personas-1", PersonaDigest: "abc", StartedAt: start}
	if err := db.StartRun(r); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if r.ID == "" {
		t.Fatal("StartRun should assign an id")
	}

	phases := []PhaseRecord{
		{Seq: 0, Phase: "personas", Status: "completed", Attempted: 2, Produced: 2, Elapsed: 1500 * time.Millisecond},
		{Seq: 1, Phase: "task-dedup", Status: "no-op", Deduplicated: 1, Message: "waiting"},
	}
	for _, p := range phases {
		if err := db.RecordPhase(r.ID, p); err != nil {
			t.Fatalf("RecordPhase failed: %v", err)
		}
	}

	got, err := db.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Outcome != OutcomeRunning || got.EndedAt != nil {
		t.Errorf("fresh run = %+v, want running without end", got)
	}

	end := start.Add(time.Minute)
	r.EndedAt = &end
	r.Outcome = OutcomeCompleted
	r.Calls, r.InputTokens, r.OutputTokens, r.Cost = 7, 1000, 200, 0.006
	if err := db.FinishRun(r); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err = db.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Outcome != OutcomeCompleted || got.Calls != 7 || got.OutputTokens != 200 {
		t.Errorf("finished run = %+v", got)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}

	stats, err := db.PhaseStats(r.ID)
	if err != nil {
		t.Fatalf("PhaseStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2", len(stats))
	}
	if stats[0].Phase != "personas" || stats[0].Elapsed != 1500*time.Millisecond {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].Message != "waiting" || stats[1].Deduplicated != 1 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
}

func TestGetRunMissing(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	db := setupTestDB(t)
	if err := db.FinishRun(&Run{ID: "ghost", Outcome: OutcomeHalted}); err == nil {
		t.Error("expected error finishing an unknown run")
	}
}

func TestListRunsAndLastCompleted(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []Outcome{OutcomeCompleted, OutcomeHalted, OutcomeCompleted, OutcomeCanceled} {
		r := &Run{ID: string(rune('a' + i)), System: "harbor", Model: "m", Fingerprint: "personas-1", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := db.StartRun(r); err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
		r.Outcome = outcome
		if err := db.FinishRun(r); err != nil {
			t.Fatalf("FinishRun failed: %v", err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "d" || runs[1].ID != "c" {
		t.Errorf("ListRuns(2) = %+v, want d then c", runs)
	}

	all, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("len(ListRuns(0)) = %d, want 4", len(all))
	}

	last, err := db.LastCompleted("harbor", "personas-1", "m")
	if err != nil {
		t.Fatalf("LastCompleted failed: %v", err)
	}
	if last == nil || last.ID != "c" {
		t.Errorf("LastCompleted = %+v, want run c", last)
	}

	none, err := db.LastCompleted("harbor", "personas-1", "other")
	if err != nil {
		t.Fatalf("LastCompleted failed: %v", err)
	}
	if none != nil {
		t.Errorf("LastCompleted for another model = %+v, want nil", none)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	old := &Run{ID: "old", System: "s", Model: "m", Fingerprint: "f", StartedAt: now.Add(-72 * time.Hour)}
	fresh := &Run{ID: "fresh", System: "s", Model: "m", Fingerprint: "f", StartedAt: now.Add(-time.Hour)}
	for _, r := range []*Run{old, fresh} {
		if err := db.StartRun(r); err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
	}
	if err := db.RecordPhase("old", PhaseRecord{Phase: "personas", Status: "completed"}); err != nil {
		t.Fatalf("RecordPhase failed: %v", err)
	}

	n, err := db.PurgeOldRuns(now, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d runs, want 1", n)
	}
	stats, err := db.PhaseStats("old")
	if err != nil {
		t.Fatalf("PhaseStats failed: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("phase rows survived their run: %+v", stats)
	}
}
