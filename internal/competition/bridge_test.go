package competition

import (
	"context"
	"errors"
	"testing"

	"github.com/automerge/automerge-go"
)

func TestFetchReturnsNotFoundForUnknownCompetition(t *testing.T) {
	bridge, _ := newTestBridge(t)

	_, err := bridge.Fetch(context.Background(), mustCompetitionID(t, "missing"))
	if !errors.Is(err, ErrCompetitionNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestFetchIncrementsCounterOncePerFetch(t *testing.T) {
	bridge, db := newTestBridge(t)
	competitionID := mustCompetitionID(t, "comp-counter")
	doc := buildTournamentDoc(t, "Counter Cup")

	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := bridge.Fetch(context.Background(), competitionID); err != nil {
			t.Fatalf("fetch %d failed: %v", i+1, err)
		}
	}

	var record Record
	if err := db.Where("competition_id = ?", competitionID.String()).Take(&record).Error; err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if record.FetchCount != 2 {
		t.Fatalf("expected fetch count 2, got %d", record.FetchCount)
	}

	// Store must never touch the counter.
	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("second store failed: %v", err)
	}
	if err := db.Where("competition_id = ?", competitionID.String()).Take(&record).Error; err != nil {
		t.Fatalf("failed to reload record: %v", err)
	}
	if record.FetchCount != 2 {
		t.Fatalf("expected store to leave fetch count at 2, got %d", record.FetchCount)
	}
}

func TestStoreWritesBytesAndDerivedStatisticsTogether(t *testing.T) {
	bridge, db := newTestBridge(t)
	competitionID := mustCompetitionID(t, "comp-stats")
	doc := buildTournamentDoc(t, "Atomic Open")

	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	var record Record
	if err := db.Where("competition_id = ?", competitionID.String()).Take(&record).Error; err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if record.StateB64 == "" {
		t.Fatalf("expected serialized state to be stored")
	}
	if record.Name != "Atomic Open" || record.TeamCount != 2 || record.PlayerCount != 3 || record.DurationMinutes != 50 {
		t.Fatalf("unexpected derived statistics: %+v", record)
	}
}

func TestStoreRecomputesStatisticsOnEveryPersist(t *testing.T) {
	bridge, db := newTestBridge(t)
	competitionID := mustCompetitionID(t, "comp-recompute")
	doc := buildTournamentDoc(t, "Growing Cup")

	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	mustSet(t, doc, "Team 3", "teams", "team-3", "name")
	mustSet(t, doc, map[string]interface{}{
		"timeline": []interface{}{map[string]interface{}{"durationMinutes": 10}},
	}, "stages", "stage-3")

	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("second store failed: %v", err)
	}

	var record Record
	if err := db.Where("competition_id = ?", competitionID.String()).Take(&record).Error; err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if record.TeamCount != 3 {
		t.Fatalf("expected recomputed team count 3, got %d", record.TeamCount)
	}
	if record.DurationMinutes != 60 {
		t.Fatalf("expected recomputed duration 60, got %d", record.DurationMinutes)
	}
}

func TestStoreThenFetchRoundTrips(t *testing.T) {
	bridge, _ := newTestBridge(t)
	competitionID := mustCompetitionID(t, "comp-roundtrip")
	doc := buildTournamentDoc(t, "Round Trip Regatta")

	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	raw, err := bridge.Fetch(context.Background(), competitionID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	reloaded, err := automerge.Load(raw)
	if err != nil {
		t.Fatalf("failed to load fetched state: %v", err)
	}

	summary := DeriveSummary(reloaded)
	if summary.Name != "Round Trip Regatta" || summary.TeamCount != 2 || summary.PlayerCount != 3 || summary.DurationMinutes != 50 {
		t.Fatalf("round-tripped document lost content: %+v", summary)
	}
}

func TestSummaryDoesNotTouchFetchCounter(t *testing.T) {
	bridge, _ := newTestBridge(t)
	competitionID := mustCompetitionID(t, "comp-summary")
	doc := buildTournamentDoc(t, "Summary Slam")

	if err := bridge.Store(context.Background(), competitionID, doc); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	record, err := bridge.Summary(context.Background(), competitionID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if record.FetchCount != 0 {
		t.Fatalf("expected summary read to leave fetch count at 0, got %d", record.FetchCount)
	}

	if _, err := bridge.Summary(context.Background(), mustCompetitionID(t, "unknown")); !errors.Is(err, ErrCompetitionNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
