package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/hertarr/ordi/common/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	db := OpenMem()
	defer db.Close()

	_, err := Get(db, []byte("missing"))
	assert.ErrorIs(t, err, errs.NotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v"), nil))
	value, err := Get(db, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestOpenReadOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	_, err := OpenReadOnly(dir)
	assert.Error(t, err, "missing database")

	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("k"), []byte("v"), nil))
	require.NoError(t, db.Close())

	ro, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer ro.Close()
	value, err := Get(ro, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}
