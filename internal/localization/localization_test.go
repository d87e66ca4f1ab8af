package localization

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLocalizer_LoadsEmbeddedLanguages(t *testing.T) {
	l, err := NewDefaultLocalizer("pt-BR")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"pt-BR", "en-US", "es-ES"}, l.Languages())
	assert.Equal(t, "Sala não encontrada.", l.GetString("pt-BR", "roomNotFound"))
	assert.Equal(t, "Room not found.", l.GetString("en-US", "roomNotFound"))
}

func TestGetString_FallbackChain(t *testing.T) {
	fsys := fstest.MapFS{
		"pt-BR.json": {Data: []byte(`{"hello":"olá","only_pt":"só pt"}`)},
		"en-US.json": {Data: []byte(`{"hello":"hello"}`)},
	}
	l, err := NewLocalizer(fsys, "pt-BR")
	require.NoError(t, err)

	assert.Equal(t, "hello", l.GetString("en-US", "hello"), "exact match")
	assert.Equal(t, "hello", l.GetString("en-GB", "hello"), "same base language")
	assert.Equal(t, "olá", l.GetString("de-DE", "hello"), "fallback language")
	assert.Equal(t, "só pt", l.GetString("en-US", "only_pt"), "fallback for a missing key")
	assert.Equal(t, "missing", l.GetString("en-US", "missing"), "key itself as last resort")
}

func TestNewLocalizer_InvalidJSON(t *testing.T) {
	fsys := fstest.MapFS{
		"pt-BR.json": {Data: []byte(`{not json`)},
	}
	_, err := NewLocalizer(fsys, "pt-BR")
	assert.Error(t, err)
}

func TestLoadDir_OverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en-US.json"), []byte(`{"roomFull":"No seats left."}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	l, err := NewDefaultLocalizer("pt-BR")
	require.NoError(t, err)
	require.NoError(t, l.LoadDir(dir))

	assert.Equal(t, "No seats left.", l.GetString("en-US", "roomFull"))
	assert.Equal(t, "Room not found.", l.GetString("en-US", "roomNotFound"), "other keys survive the merge")
}
