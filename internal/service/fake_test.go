package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/model"
	"github.com/sakif/snippetvault/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory SnippetRepository, VersionRepository and
// Transactor in one, the way sqlstore.Store is. It behaves like SQLite with
// BEGIN IMMEDIATE: an open transaction holds txMu, so transactions run one at
// a time, and its writes are staged until Commit.
//
// The fail* fields inject errors so tests can break a transaction halfway.

var errInjected = errors.New("injected failure")

type fakeStore struct {
	txMu sync.Mutex // held for the lifetime of a transaction
	mu   sync.Mutex // guards everything below

	snippets map[string]model.Snippet
	versions map[string]model.Version
	nextID   int

	createInTxCalls int
	failCreateInTx  int // fail the n-th CreateInTx call, 1-based; 0 = never
	failUpdateInTx  bool
	failCommit      bool
	failList        bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snippets: make(map[string]model.Snippet),
		versions: make(map[string]model.Version),
	}
}

func (f *fakeStore) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

type fakeTx struct {
	store    *fakeStore
	snippets map[string]model.Snippet
	versions []model.Version
	done     bool
}

func (f *fakeStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.txMu.Lock()
	return &fakeTx{store: f, snippets: make(map[string]model.Snippet)}, nil
}

func (t *fakeTx) Commit() error {
	if t.done {
		return errors.New("fake: transaction already finished")
	}
	t.done = true
	defer t.store.txMu.Unlock()

	f := t.store
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommit {
		return errInjected
	}
	for id, s := range t.snippets {
		f.snippets[id] = s
	}
	for _, v := range t.versions {
		f.versions[v.ID] = v
	}
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (f *fakeStore) tx(tx repository.Tx) *fakeTx {
	t, ok := tx.(*fakeTx)
	if !ok || t.store != f || t.done {
		panic("fake: foreign or finished transaction")
	}
	return t
}

// --- snippets ---

func (f *fakeStore) Create(_ context.Context, snippet *model.Snippet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snippet.ID = f.newID("snippet")
	f.snippets[snippet.ID] = *snippet
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	return &s, nil
}

func (f *fakeStore) List(_ context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errInjected
	}
	result := make([]model.Snippet, 0, len(f.snippets))
	for _, s := range f.snippets {
		result = append(result, s)
	}
	if opts.Offset >= len(result) {
		return []model.Snippet{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (f *fakeStore) Update(_ context.Context, snippet *model.Snippet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", snippet.ID)
	}
	f.snippets[snippet.ID] = *snippet
	return nil
}

// Delete does not cascade, so tests can leave versions of a vanished snippet
// behind.
func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(f.snippets, id)
	return nil
}

func (f *fakeStore) GetByIDInTx(_ context.Context, tx repository.Tx, id string) (*model.Snippet, error) {
	t := f.tx(tx)
	if s, ok := t.snippets[id]; ok {
		return &s, nil
	}
	return f.GetByID(context.Background(), id)
}

func (f *fakeStore) UpdateInTx(_ context.Context, tx repository.Tx, snippet *model.Snippet) error {
	t := f.tx(tx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateInTx {
		return errInjected
	}
	if _, ok := f.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", snippet.ID)
	}
	t.snippets[snippet.ID] = *snippet
	return nil
}

// --- versions ---

// versionRepo exposes the version half of fakeStore; Go can't have two
// Create methods on one type.
type versionRepo struct{ *fakeStore }

func (r versionRepo) Create(_ context.Context, v *model.Version) error {
	f := r.fakeStore
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkInsert(nil, v); err != nil {
		return err
	}
	f.stamp(v)
	f.versions[v.ID] = *v
	return nil
}

func (r versionRepo) CreateInTx(_ context.Context, tx repository.Tx, v *model.Version) error {
	f := r.fakeStore
	t := f.tx(tx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createInTxCalls++
	if f.failCreateInTx == f.createInTxCalls {
		return errInjected
	}
	if err := f.checkInsert(t, v); err != nil {
		return err
	}
	f.stamp(v)
	t.versions = append(t.versions, *v)
	return nil
}

func (r versionRepo) GetByID(_ context.Context, id string) (*model.Version, error) {
	f := r.fakeStore
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return nil, apperror.NotFound("version", id)
	}
	return &v, nil
}

func (r versionRepo) ListBySnippet(_ context.Context, snippetID string) ([]model.Version, error) {
	f := r.fakeStore
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errInjected
	}
	var result []model.Version
	for _, v := range f.versions {
		if v.SnippetID == snippetID {
			result = append(result, v)
		}
	}
	return result, nil
}

func (r versionRepo) NextNumber(_ context.Context, tx repository.Tx, snippetID string) (int, error) {
	f := r.fakeStore
	t := f.tx(tx)
	f.mu.Lock()
	defer f.mu.Unlock()
	highest := 0
	for _, v := range f.versions {
		if v.SnippetID == snippetID {
			highest = max(highest, v.VersionNumber)
		}
	}
	for _, v := range t.versions {
		if v.SnippetID == snippetID {
			highest = max(highest, v.VersionNumber)
		}
	}
	return highest + 1, nil
}

// checkInsert mirrors the table constraints. Callers hold f.mu.
func (f *fakeStore) checkInsert(t *fakeTx, v *model.Version) error {
	if _, ok := f.snippets[v.SnippetID]; !ok {
		return apperror.NotFound("snippet", v.SnippetID)
	}
	taken := func(other model.Version) bool {
		return other.SnippetID == v.SnippetID && other.VersionNumber == v.VersionNumber
	}
	for _, other := range f.versions {
		if taken(other) {
			return apperror.Conflict("version", v.SnippetID+"#"+strconv.Itoa(v.VersionNumber))
		}
	}
	if t != nil {
		for _, other := range t.versions {
			if taken(other) {
				return apperror.Conflict("version", v.SnippetID+"#"+strconv.Itoa(v.VersionNumber))
			}
		}
	}
	return nil
}

func (f *fakeStore) stamp(v *model.Version) {
	v.ID = f.newID("version")
	v.ContentHash = model.HashContent(v)
}

// committedVersions returns how many versions the snippet has outside any
// open transaction.
func (f *fakeStore) committedVersions(snippetID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.versions {
		if v.SnippetID == snippetID {
			n++
		}
	}
	return n
}

var (
	_ repository.SnippetRepository = (*fakeStore)(nil)
	_ repository.VersionRepository = versionRepo{}
	_ repository.Transactor        = (*fakeStore)(nil)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
