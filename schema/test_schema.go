package schema

// GetTestSchema returns the "notes" table used by the storage conformance
// suite.
func GetTestSchema() *Schema {
	sch := New()

	table := NewTableSchema("notes")
	table.AddField(ColumnData{
		Name:       "id",
		DataType:   TypeText,
		Nullable:   false,
		PrimaryKey: true,
		Comment:    "Note id",
	})
	table.AddField(ColumnData{
		Name:     "title",
		DataType: TypeText,
		Nullable: false,
		Index:    true,
		Comment:  "Note title",
	})
	table.AddField(ColumnData{
		Name:     "metadata",
		DataType: TypeJSON,
		Nullable: true,
		Comment:  "Tags and other metadata",
	})
	table.AddField(ColumnData{
		Name:     "revision",
		DataType: TypeInteger,
		Nullable: true,
		Comment:  "Revision number",
	})
	table.AddField(ColumnData{
		Name:     "attachment",
		DataType: TypeBlob,
		Nullable: true,
		Comment:  "Attached file bytes",
	})

	sch.AddTable(table)

	return sch
}
