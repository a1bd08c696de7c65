package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viant/corpusdedup/engine"
	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/index/bruteforce"
	"github.com/viant/corpusdedup/index/cover"
	"github.com/viant/corpusdedup/index/hnsw"
)

// ErrNotFound reports that no index has been persisted for a model yet.
var ErrNotFound = errors.New("store: index not found")

// ErrStale reports a persisted index built over other embeddings than the
// ones it is requested for.
var ErrStale = errors.New("store: index built over other embeddings")

const (
	lockRetryDelay = 50 * time.Millisecond
	lockStaleAfter = 30 * time.Minute
)

// Info describes a persisted row without decoding it.
type Info struct {
	Model string
	Kind  index.Kind
	Dim   int
	Size  int
	// Source fingerprints the embeddings the index was built over.
	Source    string
	UpdatedAt time.Time
}

// Store reads and writes index containers.
type Store struct {
	db     *sql.DB
	owner  string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) the store database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := engine.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open database.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, owner: uuid.NewString(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save persists idx for model, replacing any previous row. source
// fingerprints the embeddings idx was built over.
func (s *Store) Save(ctx context.Context, model, source string, idx index.Index) error {
	data, err := idx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", model, err)
	}
	kind, err := index.KindOf(data)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", model, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vector_storage(model_id, kind, dim, size, source, "index", updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		model, string(kind), idx.Dim(), idx.Len(), source, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: save %s: %w", model, err)
	}
	s.logger.Debug("index persisted", zap.String("model", model), zap.String("kind", string(kind)),
		zap.Int("size", idx.Len()), zap.Int("bytes", len(data)))
	return nil
}

// Load restores the index persisted for model. It returns ErrNotFound when
// nothing was saved and an error wrapping index.ErrCorrupt when the row does
// not validate.
func (s *Store) Load(ctx context.Context, model string) (index.Index, error) {
	var blob []byte
	var size int
	err := s.db.QueryRowContext(ctx, `SELECT "index", size FROM vector_storage WHERE model_id = ?`, model).Scan(&blob, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", model, err)
	}
	idx, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", model, err)
	}
	if idx.Len() != size {
		return nil, fmt.Errorf("store: load %s: %w: row says %d vectors, container has %d", model, index.ErrCorrupt, size, idx.Len())
	}
	return idx, nil
}

// Stat describes the row for model without decoding the container.
func (s *Store) Stat(ctx context.Context, model string) (*Info, error) {
	info := &Info{Model: model}
	var kind string
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT kind, dim, size, source, updated_at FROM vector_storage WHERE model_id = ?`, model).
		Scan(&kind, &info.Dim, &info.Size, &info.Source, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", model, err)
	}
	info.Kind = index.Kind(kind)
	info.UpdatedAt = time.Unix(updated, 0)
	return info, nil
}

// Delete removes the row for model, if any.
func (s *Store) Delete(ctx context.Context, model string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vector_storage WHERE model_id = ?`, model); err != nil {
		return fmt.Errorf("store: delete %s: %w", model, err)
	}
	return nil
}

// Decode restores any container produced by one of the index backends.
func Decode(data []byte) (index.Index, error) {
	kind, err := index.KindOf(data)
	if err != nil {
		return nil, err
	}
	var idx index.Index
	switch kind {
	case index.KindHNSW:
		idx = hnsw.New(hnsw.DefaultConfig())
	case index.KindCover:
		idx = cover.New(0)
	default:
		idx = bruteforce.New()
	}
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return idx, nil
}

// AcquireBuildLock blocks until this store owns the build lock for model or
// ctx is done. Locks older than lockStaleAfter are taken over. The returned
// func releases the lock and is safe to call once on every exit path.
func (s *Store) AcquireBuildLock(ctx context.Context, model string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		owner, err := s.tryLock(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("store: lock %s: %w", model, err)
		}
		if owner == s.owner {
			return func() {
				_, _ = s.db.ExecContext(context.Background(),
					`DELETE FROM vector_storage_locks WHERE model_id = ? AND owner = ?`, model, s.owner)
			}, nil
		}
		s.logger.Debug("waiting for build lock", zap.String("model", model), zap.String("holder", owner))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

func (s *Store) tryLock(ctx context.Context, model string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO vector_storage_locks(model_id, owner, locked_at) VALUES(?, ?, ?)`, model, s.owner, now); err != nil {
		return "", err
	}
	var owner string
	var lockedAt int64
	if err := tx.QueryRowContext(ctx, `SELECT owner, locked_at FROM vector_storage_locks WHERE model_id = ?`, model).Scan(&owner, &lockedAt); err != nil {
		return "", err
	}
	if owner != s.owner && lockedAt <= time.Now().Add(-lockStaleAfter).Unix() {
		res, err := tx.ExecContext(ctx, `UPDATE vector_storage_locks SET owner = ?, locked_at = ? WHERE model_id = ? AND locked_at = ?`, s.owner, now, model, lockedAt)
		if err != nil {
			return "", err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Warn("took over stale build lock", zap.String("model", model), zap.String("previous", owner))
			owner = s.owner
		}
	}
	return owner, tx.Commit()
}

// loadSource restores the index of model only when it was built over the
// embeddings fingerprinted by source.
func (s *Store) loadSource(ctx context.Context, model, source string) (index.Index, error) {
	info, err := s.Stat(ctx, model)
	if err != nil {
		return nil, err
	}
	if info.Source != source {
		return nil, fmt.Errorf("%w: %s: built over %q, want %q", ErrStale, model, info.Source, source)
	}
	return s.Load(ctx, model)
}

// Ensure returns the persisted index for model, building and saving it with
// build when none exists, rebuild is set, or the persisted one was built over
// embeddings other than those fingerprinted by source. Concurrent callers
// across processes serialize on the build lock and re-check after acquiring
// it, so only one of them builds. built reports whether build ran.
func (s *Store) Ensure(ctx context.Context, model, source string, rebuild bool, build func(ctx context.Context) (index.Index, error)) (idx index.Index, built bool, err error) {
	buildable := func(err error) bool {
		return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStale)
	}
	if !rebuild {
		idx, err = s.loadSource(ctx, model, source)
		if err == nil {
			return idx, false, nil
		}
		if !buildable(err) {
			return nil, false, err
		}
	}
	unlock, err := s.AcquireBuildLock(ctx, model)
	if err != nil {
		return nil, false, err
	}
	defer unlock()
	if !rebuild {
		idx, err = s.loadSource(ctx, model, source)
		if err == nil {
			return idx, false, nil
		}
		if !buildable(err) {
			return nil, false, err
		}
		if errors.Is(err, ErrStale) {
			s.logger.Warn("persisted index was built over other embeddings; rebuilding", zap.String("model", model))
		}
	}
	s.logger.Info("building index", zap.String("model", model), zap.Bool("rebuild", rebuild))
	if idx, err = build(ctx); err != nil {
		return nil, false, err
	}
	if err = s.Save(ctx, model, source, idx); err != nil {
		return nil, false, err
	}
	return idx, true, nil
}
