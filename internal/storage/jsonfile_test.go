package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLoadJSON_MissingFileIsFresh(t *testing.T) {
	var d doc
	res := LoadJSON(filepath.Join(t.TempDir(), "nope.json"), &d, "name")

	assert.Equal(t, LoadFresh, res.Status)
	assert.NoError(t, res.Err)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")
	require.NoError(t, SaveJSON(path, doc{Name: "a", Count: 3}))

	var d doc
	res := LoadJSON(path, &d, "name", "count")
	assert.Equal(t, LoadOK, res.Status)
	assert.Equal(t, doc{Name: "a", Count: 3}, d)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadJSON_CorruptFileIsResetAndQuarantined(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "trunc`), 0644))

	d := doc{Name: "untouched"}
	res := LoadJSON(path, &d, "name")

	assert.Equal(t, LoadReset, res.Status)
	assert.Error(t, res.Err)
	assert.Equal(t, "untouched", d.Name)
	require.NotEmpty(t, res.QuarantinePath)
	assert.True(t, strings.HasPrefix(res.QuarantinePath, path+".corrupt-"))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	kept, err := os.ReadFile(res.QuarantinePath)
	require.NoError(t, err)
	assert.Equal(t, `{"name": "trunc`, string(kept))
}

func TestLoadJSON_MissingKeysIsReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "x"}`), 0644))

	var d doc
	res := LoadJSON(path, &d, "name", "count")

	assert.Equal(t, LoadReset, res.Status)
	assert.True(t, errors.Is(res.Err, ErrMissingKeys))
}

func TestDecodeJSON_LeavesCorruptFileInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0644))

	var d doc
	err := DecodeJSON(path, &d, "name")
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	err = DecodeJSON(filepath.Join(t.TempDir(), "missing.json"), &d)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
