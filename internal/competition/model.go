package competition

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// ErrInvalidCompetitionID indicates that a competition identifier is empty or
// exceeds storage bounds.
var ErrInvalidCompetitionID = errors.New("competition: invalid competition id")

// CompetitionID represents a validated competition identifier.
type CompetitionID string

// NewCompetitionID validates raw input and returns a CompetitionID.
func NewCompetitionID(rawInput string) (CompetitionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCompetitionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCompetitionID, maxIdentifierLength)
	}
	return CompetitionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CompetitionID) String() string {
	return string(id)
}

// Record is the durable counterpart of a replicated competition document:
// the serialized state plus the summary statistics derived from it. Only the
// Bridge mutates it. FetchCount increments exactly once per load, never per
// merge or store.
type Record struct {
	CompetitionID   string    `gorm:"column:competition_id;primaryKey;size:190;not null"`
	StateB64        string    `gorm:"column:state_b64;type:text;not null"`
	FetchCount      int64     `gorm:"column:fetch_count;not null;default:0"`
	Name            string    `gorm:"column:name;size:320;not null;default:''"`
	TeamCount       int       `gorm:"column:team_count;not null;default:0"`
	PlayerCount     int       `gorm:"column:player_count;not null;default:0"`
	DurationMinutes int64     `gorm:"column:duration_minutes;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "competitions"
}

// Summary holds the statistics derived from a document's merged content.
type Summary struct {
	Name            string
	TeamCount       int
	PlayerCount     int
	DurationMinutes int64
}
