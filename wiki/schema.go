package wiki

import (
	"github.com/jadedragon942/ddwiki/schema"
)

const (
	PagesTable      = "pages"
	NamespacesTable = "namespaces"
	SequencesTable  = "sequences"
)

// AddTables registers the tables the Store needs on sch.
func AddTables(sch *schema.Schema) {
	pages := schema.NewTableSchema(PagesTable)
	pages.AddField(schema.ColumnData{Name: "id", DataType: schema.TypeText, PrimaryKey: true})
	pages.AddField(schema.ColumnData{Name: "path", DataType: schema.TypeText, Unique: true, Comment: "display name"})
	pages.AddField(schema.ColumnData{Name: "namespace_id", DataType: schema.TypeInteger, Nullable: true, Index: true})
	pages.AddField(schema.ColumnData{Name: "name", DataType: schema.TypeText, Index: true})
	pages.AddField(schema.ColumnData{Name: "contents", DataType: schema.TypeJSON})
	pages.AddField(schema.ColumnData{Name: "attachments", DataType: schema.TypeJSON})
	pages.AddField(schema.ColumnData{Name: "last_modified", DataType: schema.TypeDateTime})
	sch.AddTable(pages)

	namespaces := schema.NewTableSchema(NamespacesTable)
	namespaces.AddField(schema.ColumnData{Name: "id", DataType: schema.TypeText, PrimaryKey: true})
	namespaces.AddField(schema.ColumnData{Name: "name", DataType: schema.TypeText, Unique: true})
	namespaces.AddField(schema.ColumnData{Name: "description", DataType: schema.TypeText, Nullable: true})
	sch.AddTable(namespaces)

	sequences := schema.NewTableSchema(SequencesTable)
	sequences.AddField(schema.ColumnData{Name: "id", DataType: schema.TypeText, PrimaryKey: true})
	sequences.AddField(schema.ColumnData{Name: "next_id", DataType: schema.TypeInteger})
	sch.AddTable(sequences)
}

// NewSchema returns a schema holding only the wiki tables.
func NewSchema() *schema.Schema {
	sch := schema.New()
	sch.SetDatabaseName("ddwiki")
	AddTables(sch)
	return sch
}
