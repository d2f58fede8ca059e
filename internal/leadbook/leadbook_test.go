package leadbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "none", "leads.json"))
	require.NoError(t, err)
	assert.Zero(t, b.Len())
	assert.Empty(t, b.List())
}

func TestImportDedupesAndMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "leads.json")
	b, err := Load(path)
	require.NoError(t, err)

	res, err := b.Import([]types.Lead{
		{Address: "927 N PERRY AVE", OwnerName: "SMITH JOHN"},
		{Address: "927 N Perry Avenue", AssessedValue: types.Float(210000), OwnerName: ""},
		{Address: "   "},
		{Address: "1010 N 5TH AVE", ID: "keep-me"},
	})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 2, Merged: 1, Skipped: 1}, res)

	perry, ok := b.Get("927 n perry ave")
	require.True(t, ok)
	assert.Equal(t, "SMITH JOHN", perry.OwnerName)
	require.NotNil(t, perry.AssessedValue)
	assert.Equal(t, 210000.0, *perry.AssessedValue)
	assert.NotEmpty(t, perry.ID)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())
	fifth, ok := reloaded.Get("1010 N 5TH AVE")
	require.True(t, ok)
	assert.Equal(t, "keep-me", fifth.ID)
	assert.Equal(t, perry.ID, reloaded.List()[0].ID)
}

func TestImportNothingUsableDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	b, err := Load(path)
	require.NoError(t, err)
	res, err := b.Import([]types.Lead{{OwnerName: "NO ADDRESS"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestListReturnsCopies(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "leads.json"))
	require.NoError(t, err)
	_, err = b.Import([]types.Lead{{Address: "1 A ST", Signals: types.Signals{types.SignalLien}}})
	require.NoError(t, err)

	got := b.List()
	got[0].Signals[0] = "changed"
	again, _ := b.Get("1 A ST")
	assert.Equal(t, types.SignalLien, again.Signals[0])
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}
