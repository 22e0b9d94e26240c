package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ragbot", "prompts"), store.Dir())
}

func TestNewPromptStore_NoIO(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")

	_, err := NewPromptStore(dir)

	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestPromptStore_Load_SeedsDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptChatSystem)
	require.NoError(t, err)

	for _, f := range []string{"chat_system.txt", "no_evidence.txt", "README.md"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, "expected %s", f)
	}
}

func TestPromptStore_Load(t *testing.T) {
	tests := []struct {
		name     string
		existing map[string]string
		prompt   string
		want     string
		contains string
		wantErr  bool
	}{
		{
			name:     "default system prompt",
			prompt:   driven.PromptChatSystem,
			contains: "answers questions about the user's documents",
		},
		{
			name:   "default no evidence",
			prompt: driven.PromptNoEvidence,
			want:   "No relevant information was found in the processed documents.",
		},
		{
			name:     "custom file wins",
			existing: map[string]string{"chat_system.txt": "Answer like a pirate."},
			prompt:   driven.PromptChatSystem,
			want:     "Answer like a pirate.",
		},
		{
			name:     "whitespace trimmed",
			existing: map[string]string{"no_evidence.txt": "\n  Nothing found.  \n\n"},
			prompt:   driven.PromptNoEvidence,
			want:     "Nothing found.",
		},
		{
			name:    "unknown prompt",
			prompt:  "does_not_exist",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.existing {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
			}
			store, err := NewPromptStore(dir)
			require.NoError(t, err)

			got, err := store.Load(tt.prompt)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			if tt.contains != "" {
				assert.Contains(t, got, tt.contains)
			}
		})
	}
}

func TestPromptStore_FallsBackWhenFileRemoved(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, err = store.Load(driven.PromptNoEvidence)
	require.NoError(t, err)
	store.Reload()
	require.NoError(t, os.Remove(filepath.Join(dir, "no_evidence.txt")))

	got, err := store.Load(driven.PromptNoEvidence)

	require.NoError(t, err)
	assert.Equal(t, defaultPrompts[driven.PromptNoEvidence], got)
}

func TestPromptStore_CacheAndReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, "chat_system.txt")

	_, err = store.Load(driven.PromptChatSystem)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("edited"), 0o600))

	cached, err := store.Load(driven.PromptChatSystem)
	require.NoError(t, err)
	assert.NotEqual(t, "edited", cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptChatSystem)
	require.NoError(t, err)
	assert.Equal(t, "edited", fresh)
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(path, []byte("mine"), 0o600))
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptChatSystem)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestPromptStore_InitFailureUsesDefaults(t *testing.T) {
	store, err := NewPromptStore("/dev/null/prompts")
	require.NoError(t, err)

	got, err := store.Load(driven.PromptNoEvidence)

	require.NoError(t, err)
	assert.Equal(t, defaultPrompts[driven.PromptNoEvidence], got)
	_, err = store.Load("unknown")
	assert.Error(t, err)
}

func TestPromptStore_ConcurrentLoad(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = store.Load(driven.PromptChatSystem)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}
