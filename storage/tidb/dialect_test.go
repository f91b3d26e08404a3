package tidb

import (
	"testing"

	"github.com/jadedragon942/ddwiki/schema"
	"github.com/stretchr/testify/assert"
)

func TestTiDBDDL(t *testing.T) {
	d := Dialect{}
	stmts := d.CreateTable(schema.GetTestSchema().Tables["notes"])
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `notes` (`id` VARCHAR(255) PRIMARY KEY, `title` VARCHAR(255) NOT NULL, `metadata` LONGTEXT, `revision` BIGINT, `attachment` LONGBLOB)", stmts[0])
	assert.Equal(t, "`a``b`", d.QuoteIdent("a`b"))
}
