package competition

import (
	"fmt"
	"strings"
	"testing"

	"github.com/automerge/automerge-go"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustCompetitionID(t *testing.T, value string) CompetitionID {
	t.Helper()
	id, err := NewCompetitionID(value)
	if err != nil {
		t.Fatalf("unexpected competition id error: %v", err)
	}
	return id
}

func mustSet(t *testing.T, doc *automerge.Doc, value interface{}, path ...interface{}) {
	t.Helper()
	if err := doc.Path(path...).Set(value); err != nil {
		t.Fatalf("failed to set %v: %v", path, err)
	}
}

// buildTournamentDoc builds the canonical fixture: two teams, three players,
// and two stages whose timelines carry 20 and 30 minute entries.
func buildTournamentDoc(t *testing.T, name string) *automerge.Doc {
	t.Helper()
	doc := automerge.New()
	mustSet(t, doc, name, "info", "name")
	for i := 1; i <= 2; i++ {
		mustSet(t, doc, fmt.Sprintf("Team %d", i), "teams", fmt.Sprintf("team-%d", i), "name")
	}
	for i := 1; i <= 3; i++ {
		mustSet(t, doc, fmt.Sprintf("Player %d", i), "players", fmt.Sprintf("player-%d", i), "name")
	}
	mustSet(t, doc, map[string]interface{}{
		"timeline": []interface{}{map[string]interface{}{"durationMinutes": 20}},
	}, "stages", "stage-1")
	mustSet(t, doc, map[string]interface{}{
		"timeline": []interface{}{map[string]interface{}{"durationMinutes": 30}},
	}, "stages", "stage-2")
	return doc
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestBridge(t *testing.T) (*Bridge, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	bridge, err := NewBridge(BridgeConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	return bridge, db
}
