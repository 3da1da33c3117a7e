package competition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/podiumlab/podium/backend/internal/access"
	"github.com/podiumlab/podium/backend/internal/metrics"
)

var (
	// ErrMergeRejected indicates the caller lacked write capability. The
	// update is dropped, not merged and not broadcast; senders are not
	// notified.
	ErrMergeRejected = errors.New("competition: merge rejected")
	// ErrMalformedUpdate indicates the payload could not be parsed as a
	// document update. The resident document is untouched.
	ErrMalformedUpdate = errors.New("competition: malformed update")

	errMissingPersistence = errors.New("persistence bridge is required")
)

const (
	opStoreNew     = "competition.store.new"
	opStoreGet     = "competition.store.get"
	opStoreApply   = "competition.store.apply_update"
	opStoreEvict   = "competition.store.evict"
	opStorePersist = "competition.store.persist"

	persistAttempts  = 3
	persistRetryBase = 100 * time.Millisecond
)

// Persistence is the slice of the bridge the document store depends on.
type Persistence interface {
	Fetch(ctx context.Context, id CompetitionID) ([]byte, error)
	Store(ctx context.Context, id CompetitionID, doc *automerge.Doc) error
}

// DocumentStoreConfig describes the dependencies of the document store.
type DocumentStoreConfig struct {
	Persistence Persistence
	Logger      *zap.Logger
	Sleep       func(time.Duration)
}

// DocumentStore is the in-memory registry of active replicated documents. It
// exclusively owns each resident document: merges go through ApplyUpdate,
// reads through Snapshot, and connections never hold the document itself.
type DocumentStore struct {
	persistence Persistence
	logger      *zap.Logger
	sleep       func(time.Duration)

	group    singleflight.Group
	mu       sync.Mutex
	resident map[string]*residentDoc
}

// residentDoc serializes merges per document. Unrelated documents merge
// fully independently. persistMu orders writers to durable storage; merges
// hold only mu, so a slow persist never stalls them. version counts merges
// so a persist can tell whether new state landed after its snapshot.
type residentDoc struct {
	mu      sync.Mutex
	doc     *automerge.Doc
	dirty   bool
	version uint64

	persistMu sync.Mutex
}

// NewDocumentStore constructs the document store.
func NewDocumentStore(cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.Persistence == nil {
		return nil, newStoreError(opStoreNew, "missing_persistence", errMissingPersistence)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &DocumentStore{
		persistence: cfg.Persistence,
		logger:      logger,
		sleep:       sleep,
		resident:    make(map[string]*residentDoc),
	}, nil
}

// get returns the resident document, loading it from the bridge on first
// access. Concurrent first loads for the same identifier collapse into a
// single fetch; a missing record becomes a fresh empty document.
func (s *DocumentStore) get(ctx context.Context, id CompetitionID) (*residentDoc, error) {
	s.mu.Lock()
	if entry, ok := s.resident[id.String()]; ok {
		s.mu.Unlock()
		return entry, nil
	}
	s.mu.Unlock()

	value, err, _ := s.group.Do(id.String(), func() (interface{}, error) {
		s.mu.Lock()
		if entry, ok := s.resident[id.String()]; ok {
			s.mu.Unlock()
			return entry, nil
		}
		s.mu.Unlock()

		raw, err := s.persistence.Fetch(ctx, id)
		var doc *automerge.Doc
		switch {
		case errors.Is(err, ErrCompetitionNotFound):
			doc = automerge.New()
		case err != nil:
			return nil, newStoreError(opStoreGet, "fetch_failed", err)
		default:
			doc, err = automerge.Load(raw)
			if err != nil {
				return nil, newStoreError(opStoreGet, "state_load_failed", err)
			}
		}

		entry := &residentDoc{doc: doc}
		s.mu.Lock()
		s.resident[id.String()] = entry
		s.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*residentDoc), nil
}

// ApplyUpdate merges the raw update bytes into the resident document. The
// capability parameter is the session gate's decision; callers without write
// capability get ErrMergeRejected and the document is untouched. Merges for
// one document apply in a total order; the merge itself is all-or-nothing.
func (s *DocumentStore) ApplyUpdate(ctx context.Context, capability access.Capability, id CompetitionID, update []byte) error {
	if !capability.CanWrite() {
		metrics.MergesRejected.Inc()
		return ErrMergeRejected
	}

	entry, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	incoming, err := automerge.Load(update)
	if err != nil {
		metrics.MalformedUpdates.Inc()
		s.logger.Warn("dropping malformed update",
			zap.String("competition_id", id.String()),
			zap.Int("payload_bytes", len(update)),
			zap.Error(err))
		return newStoreError(opStoreApply, "malformed_update", errors.Join(ErrMalformedUpdate, err))
	}
	changes, err := incoming.Changes()
	if err != nil {
		metrics.MalformedUpdates.Inc()
		return newStoreError(opStoreApply, "malformed_update", errors.Join(ErrMalformedUpdate, err))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	// Change application is idempotent (already-applied changes are skipped
	// by hash) and commutative, so replayed or reordered updates converge.
	if err := entry.doc.Apply(changes...); err != nil {
		metrics.MalformedUpdates.Inc()
		return newStoreError(opStoreApply, "merge_failed", errors.Join(ErrMalformedUpdate, err))
	}
	entry.dirty = true
	entry.version++
	metrics.MergesApplied.Inc()
	return nil
}

// Snapshot returns the serialized current state of the document, loading it
// if necessary.
func (s *DocumentStore) Snapshot(ctx context.Context, id CompetitionID) ([]byte, error) {
	entry, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.doc.Save(), nil
}

// Evict persists the document and then removes it from residency. The entry
// stays resident until the persist commits, so a load arriving during the
// final write joins the live document instead of refetching stale durable
// state. Evicting an absent identifier is a no-op; when the persist fails
// after retries the document stays resident so memory never holds the only
// copy of a merge. A merge landing mid-persist also keeps the document
// resident, to be written by the next persist.
func (s *DocumentStore) Evict(ctx context.Context, id CompetitionID) error {
	s.mu.Lock()
	entry, ok := s.resident[id.String()]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.persist(ctx, id, entry); err != nil {
		return newStoreError(opStoreEvict, "final_persist_failed", err)
	}

	removed := false
	s.mu.Lock()
	if current, ok := s.resident[id.String()]; ok && current == entry {
		entry.mu.Lock()
		if !entry.dirty {
			delete(s.resident, id.String())
			removed = true
		}
		entry.mu.Unlock()
	}
	s.mu.Unlock()

	if removed {
		s.logger.Info("competition evicted", zap.String("competition_id", id.String()))
	} else {
		s.logger.Info("eviction deferred, merges arrived during the final persist",
			zap.String("competition_id", id.String()))
	}
	return nil
}

// PersistAll writes every dirty resident document to durable storage. It is
// driven by a periodic ticker so a crash loses at most one interval of
// merges, independent of eviction. Failures are logged and counted; the
// in-memory documents remain authoritative.
func (s *DocumentStore) PersistAll(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(map[string]*residentDoc, len(s.resident))
	for key, entry := range s.resident {
		snapshot[key] = entry
	}
	s.mu.Unlock()

	for key, entry := range snapshot {
		if err := s.persist(ctx, CompetitionID(key), entry); err != nil {
			s.logger.Error("periodic persist failed",
				zap.String("competition_id", key),
				zap.Error(err))
		}
	}
}

// persist writes the document's current state durably. The state is
// snapshotted under the merge lock and written outside it, so retries and
// their sleeps never block concurrent merges. The dirty flag clears only
// when no merge landed after the snapshot was taken.
func (s *DocumentStore) persist(ctx context.Context, id CompetitionID, entry *residentDoc) error {
	entry.persistMu.Lock()
	defer entry.persistMu.Unlock()

	entry.mu.Lock()
	if !entry.dirty {
		entry.mu.Unlock()
		return nil
	}
	version := entry.version
	raw := entry.doc.Save()
	entry.mu.Unlock()

	snapshot, err := automerge.Load(raw)
	if err != nil {
		return newStoreError(opStorePersist, "state_snapshot_failed", err)
	}

	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err := s.persistence.Store(ctx, id, snapshot); err != nil {
			lastErr = err
			metrics.PersistFailures.Inc()
			s.logger.Warn("persist attempt failed",
				zap.String("competition_id", id.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			s.sleep(persistRetryBase * time.Duration(attempt))
			continue
		}
		entry.mu.Lock()
		if entry.version == version {
			entry.dirty = false
		}
		entry.mu.Unlock()
		return nil
	}
	return lastErr
}
