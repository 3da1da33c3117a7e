package competition

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/automerge/automerge-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/podiumlab/podium/backend/internal/metrics"
)

var (
	// ErrCompetitionNotFound indicates no durable record exists for the
	// identifier. The document store decides whether that means "brand new"
	// or a hard failure.
	ErrCompetitionNotFound = errors.New("competition: not found")

	errMissingBridgeDatabase = errors.New("database handle is required")
)

const (
	opBridgeNew     = "competition.bridge.new"
	opBridgeFetch   = "competition.fetch"
	opBridgeStore   = "competition.store"
	opBridgeSummary = "competition.summary"
)

// BridgeConfig describes the dependencies of the persistence bridge.
type BridgeConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Bridge owns all durable reads and writes of competition records. The
// document store never touches storage directly.
type Bridge struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBridge constructs the persistence bridge.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opBridgeNew, "missing_database", errMissingBridgeDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{db: cfg.Database, logger: logger}, nil
}

// Fetch reads the serialized document bytes and increments the record's fetch
// counter as part of the same transaction.
func (b *Bridge) Fetch(ctx context.Context, id CompetitionID) ([]byte, error) {
	var raw []byte
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Record
		if err := tx.Where("competition_id = ?", id.String()).Take(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCompetitionNotFound
			}
			return newStoreError(opBridgeFetch, "record_select_failed", err)
		}

		if err := tx.Model(&Record{}).
			Where("competition_id = ?", id.String()).
			UpdateColumn("fetch_count", gorm.Expr("fetch_count + 1")).Error; err != nil {
			return newStoreError(opBridgeFetch, "counter_update_failed", err)
		}

		decoded, err := base64.StdEncoding.DecodeString(record.StateB64)
		if err != nil {
			return newStoreError(opBridgeFetch, "state_decode_failed", err)
		}
		raw = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DocumentFetches.Inc()
	return raw, nil
}

// Store serializes the document, derives its summary statistics, and upserts
// bytes plus every derived column in a single statement. The fetch counter is
// deliberately not among the assigned columns.
func (b *Bridge) Store(ctx context.Context, id CompetitionID, doc *automerge.Doc) error {
	summary := DeriveSummary(doc)
	record := Record{
		CompetitionID:   id.String(),
		StateB64:        base64.StdEncoding.EncodeToString(doc.Save()),
		Name:            summary.Name,
		TeamCount:       summary.TeamCount,
		PlayerCount:     summary.PlayerCount,
		DurationMinutes: summary.DurationMinutes,
	}

	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "competition_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state_b64", "name", "team_count", "player_count", "duration_minutes", "updated_at",
			}),
		}).
		Create(&record).Error
	if err != nil {
		return newStoreError(opBridgeStore, "record_upsert_failed", err)
	}

	b.logger.Debug("competition persisted",
		zap.String("competition_id", id.String()),
		zap.String("name", summary.Name),
		zap.Int("team_count", summary.TeamCount),
		zap.Int("player_count", summary.PlayerCount),
		zap.Int64("duration_minutes", summary.DurationMinutes))
	return nil
}

// Summary returns the persisted record without touching the fetch counter.
func (b *Bridge) Summary(ctx context.Context, id CompetitionID) (Record, error) {
	var record Record
	err := b.db.WithContext(ctx).
		Where("competition_id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrCompetitionNotFound
	}
	if err != nil {
		return Record{}, newStoreError(opBridgeSummary, "record_select_failed", err)
	}
	return record, nil
}

// StoreError carries an operation.reason code alongside the cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the structured error code.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
