package sqlserver

import (
	"testing"

	"github.com/jadedragon942/ddwiki/storagetest"
)

func TestSQLServerStorage(t *testing.T) {
	storagetest.RunFromEnv(t, "SQLSERVER_TEST_URL", New, true)
}
