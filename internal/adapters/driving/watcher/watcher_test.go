package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/core/services"
)

type fakeIngest struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeIngest) Ingest(context.Context, string, string, []byte) (*driving.IngestResult, error) {
	return nil, nil
}

func (f *fakeIngest) IngestFiles(_ context.Context, paths []string) []driving.IngestResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]driving.IngestResult, len(paths))
	for i, p := range paths {
		f.paths = append(f.paths, p)
		out[i] = driving.IngestResult{Path: p, Filename: filepath.Base(p), Status: domain.StatusEmbedded, Chunks: 1, Err: f.err}
		if f.err != nil {
			out[i].Status = domain.StatusFailed
		}
	}
	return out
}

type fakeDocuments struct {
	mu      sync.Mutex
	stored  map[string]bool
	deleted []string
}

func (f *fakeDocuments) List(context.Context) ([]domain.Document, error)       { return nil, nil }
func (f *fakeDocuments) Get(context.Context, string) (*domain.Document, error) { return nil, nil }
func (f *fakeDocuments) Stats(context.Context) (*domain.CorpusStats, error)    { return nil, nil }

func (f *fakeDocuments) Delete(_ context.Context, ref string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stored[ref] {
		return nil, fmt.Errorf("document %s: %w", ref, domain.ErrNotFound)
	}
	delete(f.stored, ref)
	f.deleted = append(f.deleted, ref)
	return &domain.Document{ID: ref}, nil
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := New(filepath.Join(dir, "missing"), &fakeIngest{}, &fakeDocuments{}, 0)
	assert.Error(t, err)

	_, err = New(file, &fakeIngest{}, &fakeDocuments{}, 0)
	assert.Error(t, err)

	_, err = New(dir, nil, &fakeDocuments{}, 0)
	assert.Error(t, err)

	w, err := New(dir, &fakeIngest{}, &fakeDocuments{}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want action
	}{
		{name: "create pdf", path: "/d/a.pdf", op: fsnotify.Create, want: actionIngest},
		{name: "write pdf upper case", path: "/d/A.PDF", op: fsnotify.Write, want: actionIngest},
		{name: "write and chmod", path: "/d/a.pdf", op: fsnotify.Write | fsnotify.Chmod, want: actionIngest},
		{name: "remove pdf", path: "/d/a.pdf", op: fsnotify.Remove, want: actionRemove},
		{name: "rename pdf", path: "/d/a.pdf", op: fsnotify.Rename, want: actionRemove},
		{name: "chmod only", path: "/d/a.pdf", op: fsnotify.Chmod, want: actionNone},
		{name: "not a pdf", path: "/d/a.txt", op: fsnotify.Create, want: actionNone},
		{name: "hidden temp file", path: "/d/.a.pdf", op: fsnotify.Create, want: actionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(fsnotify.Event{Name: tt.path, Op: tt.op}))
		})
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	id := services.DocumentIDForPath(path)

	t.Run("new file is ingested", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
		ingest, docs := &fakeIngest{}, &fakeDocuments{stored: map[string]bool{}}
		w, err := New(dir, ingest, docs, time.Millisecond)
		require.NoError(t, err)

		res, err := w.process(ctx, path, actionIngest)

		require.NoError(t, err)
		assert.Equal(t, []string{path}, ingest.paths)
		assert.Equal(t, domain.StatusEmbedded, res.Status)
		assert.Empty(t, docs.deleted)
	})

	t.Run("changed file replaces stored document", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
		ingest, docs := &fakeIngest{}, &fakeDocuments{stored: map[string]bool{id: true}}
		w, err := New(dir, ingest, docs, time.Millisecond)
		require.NoError(t, err)

		_, err = w.process(ctx, path, actionIngest)

		require.NoError(t, err)
		assert.Equal(t, []string{id}, docs.deleted)
		assert.Equal(t, []string{path}, ingest.paths)
	})

	t.Run("removed file deletes document", func(t *testing.T) {
		gone := filepath.Join(dir, "gone.pdf")
		goneID := services.DocumentIDForPath(gone)
		ingest, docs := &fakeIngest{}, &fakeDocuments{stored: map[string]bool{goneID: true}}
		w, err := New(dir, ingest, docs, time.Millisecond)
		require.NoError(t, err)

		_, err = w.process(ctx, gone, actionRemove)

		require.NoError(t, err)
		assert.Equal(t, []string{goneID}, docs.deleted)
		assert.Empty(t, ingest.paths)
	})

	t.Run("remove of unknown file is a no-op", func(t *testing.T) {
		w, err := New(dir, &fakeIngest{}, &fakeDocuments{stored: map[string]bool{}}, time.Millisecond)
		require.NoError(t, err)

		_, err = w.process(ctx, filepath.Join(dir, "never.pdf"), actionRemove)

		assert.NoError(t, err)
	})

	t.Run("remove then recreate ingests", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
		ingest := &fakeIngest{}
		w, err := New(dir, ingest, &fakeDocuments{stored: map[string]bool{}}, time.Millisecond)
		require.NoError(t, err)

		_, err = w.process(ctx, path, actionRemove)

		require.NoError(t, err)
		assert.Equal(t, []string{path}, ingest.paths)
	})

	t.Run("ingest failure is returned", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))
		ingest := &fakeIngest{err: domain.ErrExtraction}
		w, err := New(dir, ingest, &fakeDocuments{stored: map[string]bool{}}, time.Millisecond)
		require.NoError(t, err)

		res, err := w.process(ctx, path, actionIngest)

		assert.ErrorIs(t, err, domain.ErrExtraction)
		assert.Equal(t, domain.StatusFailed, res.Status)
	})
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o700))
	ingest := &fakeIngest{}
	w, err := New(dir, ingest, &fakeDocuments{}, 0)
	require.NoError(t, err)

	results, err := w.Scan(context.Background())

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.ElementsMatch(t, []string{filepath.Join(w.dir, "a.pdf"), filepath.Join(w.dir, "b.PDF")}, ingest.paths)
}

func TestRun_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	ingest := &fakeIngest{}
	w, err := New(dir, ingest, &fakeDocuments{stored: map[string]bool{}}, 150*time.Millisecond)
	require.NoError(t, err)

	processed := make(chan string, 10)
	w.OnProcessed = func(path string, res *driving.IngestResult, _ error) {
		if res != nil {
			processed <- path
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(w.dir, "new.pdf")
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%%PDF %d", i)), 0o600))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case got := <-processed:
		assert.Equal(t, path, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for ingestion")
	}

	// No second ingestion for the burst.
	select {
	case extra := <-processed:
		t.Fatalf("unexpected second ingestion of %s", extra)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)

	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	assert.Equal(t, []string{path}, ingest.paths)
}
