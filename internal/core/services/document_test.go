package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func TestDocumentService_Delete(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantID  string
		wantErr error
	}{
		{name: "by id", ref: "doc-2", wantID: "doc-2"},
		{name: "by filename", ref: "report.pdf", wantID: "doc-1"},
		{name: "ambiguous filename", ref: "notes.pdf", wantErr: domain.ErrInvalidInput},
		{name: "unknown", ref: "missing.pdf", wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewVectorStore()
			embedDoc(t, store, "doc-1", "report.pdf", []float32{1, 0, 0})
			embedDoc(t, store, "doc-2", "notes.pdf", []float32{0, 1, 0})
			embedDoc(t, store, "doc-3", "notes.pdf", []float32{0, 0, 1})
			svc := NewDocumentService(store)
			ctx := context.Background()

			doc, err := svc.Delete(ctx, tt.ref)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				docs, listErr := svc.List(ctx)
				require.NoError(t, listErr)
				assert.Len(t, docs, 3)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, doc.ID)

			_, err = svc.Get(ctx, tt.wantID)
			assert.ErrorIs(t, err, domain.ErrNotFound)

			stats, err := svc.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, stats.Documents)
			assert.Equal(t, 2, stats.Chunks)
		})
	}
}
