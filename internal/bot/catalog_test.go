package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()
	c := DefaultCatalog()

	require.NoError(t, c.Validate())
	assert.Equal(t, "Welcome to NanBoya Sample Bot. Type anything to get started.", c.Welcome)
	assert.Equal(t, "No QnA Maker answers were found.", c.NoAnswer)
	assert.Equal(t, "Hi Bob. How may I help you?.", c.GreetingFor("Bob"))
	assert.Len(t, c.SuggestedActions, 3)
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	t.Parallel()
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), c)
}

func TestLoadCatalogOverlaysDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("welcome: Hello there.\nsuggested_actions:\n  - opening hours?\n"), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", c.Welcome)
	assert.Equal(t, []string{"opening hours?"}, c.SuggestedActions)
	assert.Equal(t, DefaultCatalog().NamePrompt, c.NamePrompt)
}

func TestLoadCatalogRejectsEmptyText(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_answer: \"  \"\n"), 0o600))

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_answer cannot be empty")
}

func TestLoadCatalogErrors(t *testing.T) {
	t.Parallel()
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("welcome: [unterminated\n"), 0o600))
	_, err = LoadCatalog(path)
	require.Error(t, err)
}
