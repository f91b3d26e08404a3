package blob_test

import (
	"testing"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/blob/blobtest"
	"github.com/jadedragon942/ddwiki/blob/fsblob"
	"github.com/stretchr/testify/require"
)

func TestCachedKeepsStoreContract(t *testing.T) {
	inner, err := fsblob.New(t.TempDir())
	require.NoError(t, err)
	c, err := blob.NewCached(inner, 16, 0)
	require.NoError(t, err)
	blobtest.StoreTest(t, c)
}
