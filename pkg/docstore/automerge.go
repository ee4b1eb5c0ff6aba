package docstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"go.trai.ch/zerr"
)

// docsKey is the root map of a collection document, holding every record by id.
const docsKey = "docs"

// AutomergeStore keeps one automerge document per collection in memory. When opened over a
// database the documents are written back as snapshots by Flush.
type AutomergeStore struct {
	database *sql.DB

	mu    sync.Mutex
	docs  map[string]*automerge.Doc
	dirty map[string]bool
}

var _ Store = (*AutomergeStore)(nil)

// NewMemoryStore returns a store that is never persisted.
func NewMemoryStore() *AutomergeStore {
	return &AutomergeStore{
		docs:  make(map[string]*automerge.Doc),
		dirty: make(map[string]bool),
	}
}

// OpenAutomergeStore migrates the snapshot schema and loads the latest snapshot of every
// collection.
func OpenAutomergeStore(ctx context.Context, database *sql.DB) (*AutomergeStore, error) {
	if err := Migrate(database); err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	s.database = database

	res, err := database.QueryContext(ctx, `SELECT st.id, sn.content FROM stores st INNER JOIN snapshots sn ON sn.id = st.snapshot_id`)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to query snapshots")
	}
	defer func(res *sql.Rows) {
		if err := res.Close(); err != nil {
			slog.Error("failed to close", "err", err)
		}
	}(res)
	for res.Next() {
		var collection, rawSave string
		if err := res.Scan(&collection, &rawSave); err != nil {
			return nil, zerr.Wrap(err, "failed to scan snapshot")
		}
		raw, err := base64.StdEncoding.DecodeString(rawSave)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to decode snapshot"), "collection", collection)
		}
		doc, err := automerge.Load(raw)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to load doc"), "collection", collection)
		}
		s.docs[collection] = doc
		slog.Info("loaded collection", "collection", collection, "heads", doc.Heads())
	}
	if err := res.Err(); err != nil {
		return nil, zerr.Wrap(err, "failed to read snapshots")
	}
	return s, nil
}

// collection returns the document for name, creating an empty one when create is set.
func (s *AutomergeStore) collection(name string, create bool) (*automerge.Doc, error) {
	if doc, ok := s.docs[name]; ok {
		return doc, nil
	}
	if !create {
		return nil, nil
	}
	doc := automerge.New()
	if err := doc.Path(docsKey).Set(map[string]any{}); err != nil {
		return nil, zerr.Wrap(err, "failed to seed collection")
	}
	if _, err := doc.Commit("create "+name, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, zerr.Wrap(err, "failed to commit collection")
	}
	s.docs[name] = doc
	s.dirty[name] = true
	return doc, nil
}

func readDocuments(doc *automerge.Doc) (map[string]Document, error) {
	value, err := doc.Path(docsKey).Get()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read collection")
	}
	raw, _ := value.Interface().(map[string]any)
	out := make(map[string]Document, len(raw))
	for id, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out[id] = Document(m)
		}
	}
	return out, nil
}

func (s *AutomergeStore) Find(_ context.Context, collection string, filter Filter, page Page) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.collection(collection, false)
	if err != nil || doc == nil {
		return []Document{}, err
	}
	all, err := readDocuments(doc)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(all))
	for _, d := range all {
		if filter.Match(d) {
			out = append(out, d)
		}
	}
	sortDocuments(out)
	return applyPage(out, page), nil
}

func (s *AutomergeStore) FindByID(_ context.Context, collection, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.collection(collection, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	all, err := readDocuments(doc)
	if err != nil {
		return nil, err
	}
	found, ok := all[id]
	if !ok {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *AutomergeStore) Insert(_ context.Context, collection string, d Document) error {
	id := d.ID()
	if id == "" {
		return zerr.New("document has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.collection(collection, true)
	if err != nil {
		return err
	}
	all, err := readDocuments(doc)
	if err != nil {
		return err
	}
	if _, ok := all[id]; ok {
		return ErrExists
	}
	return s.write(collection, doc, d, "insert "+id)
}

func (s *AutomergeStore) Replace(_ context.Context, collection string, d Document) error {
	id := d.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.collection(collection, false)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound
	}
	all, err := readDocuments(doc)
	if err != nil {
		return err
	}
	if _, ok := all[id]; !ok {
		return ErrNotFound
	}
	return s.write(collection, doc, d, "replace "+id)
}

func (s *AutomergeStore) write(collection string, doc *automerge.Doc, d Document, message string) error {
	if err := doc.Path(docsKey, d.ID()).Set(map[string]any(d)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to set document"), "collection", collection)
	}
	if _, err := doc.Commit(message, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return zerr.Wrap(err, "failed to commit doc")
	}
	s.dirty[collection] = true
	return nil
}

func (s *AutomergeStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.collection(collection, false)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound
	}
	all, err := readDocuments(doc)
	if err != nil {
		return err
	}
	if _, ok := all[id]; !ok {
		return ErrNotFound
	}
	if err := doc.Path(docsKey, id).Delete(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to delete document"), "collection", collection)
	}
	if _, err := doc.Commit("delete "+id, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return zerr.Wrap(err, "failed to commit doc")
	}
	s.dirty[collection] = true
	return nil
}

// Fork returns an independent copy of a collection document, or nil if it does not exist.
func (s *AutomergeStore) Fork(collection string) (*automerge.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection]
	if !ok {
		return nil, nil
	}
	fork, err := doc.Fork()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to fork doc")
	}
	return fork, nil
}

// Collections lists the names of the collections held in memory.
func (s *AutomergeStore) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for name := range s.docs {
		out = append(out, name)
	}
	return out
}

// Flush writes a snapshot of every collection changed since the last flush. It is a no-op for
// memory stores.
func (s *AutomergeStore) Flush(ctx context.Context) error {
	if s.database == nil {
		return nil
	}
	s.mu.Lock()
	pending := make(map[string]string, len(s.dirty))
	for name := range s.dirty {
		pending[name] = base64.StdEncoding.EncodeToString(s.docs[name].Save())
	}
	s.dirty = make(map[string]bool)
	s.mu.Unlock()

	for name, content := range pending {
		if err := s.persist(ctx, name, content); err != nil {
			s.mu.Lock()
			s.dirty[name] = true
			s.mu.Unlock()
			return err
		}
		slog.Info("backed up", "collection", name, "#doc", len(content))
	}
	return nil
}

func (s *AutomergeStore) persist(ctx context.Context, collection, content string) error {
	tx, err := s.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return zerr.Wrap(err, "failed to start tx")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("failed to rollback", "err", err)
		}
	}()

	snapShotID := fmt.Sprintf("%d", time.Now().UnixNano())
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(id, store_id, content) VALUES (?, ?, ?)`, snapShotID, collection, content); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to persist snapshot"), "collection", collection)
	}
	if _, err := tx.ExecContext(
		ctx, `INSERT INTO stores(id, snapshot_id) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		collection, snapShotID,
	); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to update store pointer"), "collection", collection)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE store_id = ? AND id != ?`, collection, snapShotID); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to prune snapshots"), "collection", collection)
	}
	if err := tx.Commit(); err != nil {
		return zerr.Wrap(err, "failed to commit")
	}
	return nil
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (s *AutomergeStore) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.Flush(ctx); err != nil {
				slog.Error("failed to backup collections", "err", err)
			}
		case <-ctx.Done():
			return s.Flush(context.WithoutCancel(ctx))
		}
	}
}

func (s *AutomergeStore) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}
