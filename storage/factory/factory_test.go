package factory

import (
	"testing"

	"github.com/jadedragon942/ddwiki/storage/s3"
	"github.com/jadedragon942/ddwiki/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s, err := New("SQLite")
	require.NoError(t, err)
	assert.IsType(t, &sqlite.SQLiteStorage{}, s)

	s, err = New("s3")
	require.NoError(t, err)
	assert.IsType(t, &s3.S3Storage{}, s)

	_, err = New("dbase")
	assert.ErrorContains(t, err, "unknown storage engine")
}

func TestEngines(t *testing.T) {
	engines := Engines()
	assert.Contains(t, engines, "postgres")
	assert.Contains(t, engines, "scylla")
	assert.IsIncreasing(t, engines)
}
