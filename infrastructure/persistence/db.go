// Package persistence provides database storage implementations.
package persistence

import (
	"fmt"
	"strings"

	"github.com/personalrag/ragengine/internal/database"
	"gorm.io/gorm"
)

// allModels returns every GORM model the Document Store and its sibling
// entity stores manage, for AutoMigrate and schema validation. The
// document_embeddings table is created separately by NewDocumentStore
// because its column type (VECTOR vs JSON) depends on the dialect.
func allModels() []interface{} {
	return []interface{}{
		&documentModel{},
		&syncLogModel{},
		&embeddingCostModel{},
		&conversationTurnModel{},
	}
}

// AutoMigrate runs GORM auto migration for every model except the
// Document Store's own tables, which NewDocumentStore manages so it can
// size the embedding column to the configured provider's dimensionality.
func AutoMigrate(db database.Database) error {
	return db.GORM().AutoMigrate(
		&syncLogModel{},
		&embeddingCostModel{},
		&conversationTurnModel{},
	)
}

// ValidateSchema verifies every GORM model field has a corresponding column
// in the database. Returns an error listing any missing columns.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()
	migrator := gdb.Migrator()

	var missing []string
	for _, model := range allModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}

		columnTypes, err := migrator.ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("get column types for %s: %w", stmt.Table, err)
		}

		actual := make(map[string]bool, len(columnTypes))
		for _, ct := range columnTypes {
			actual[ct.Name()] = true
		}

		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.DBName == "-" {
				continue
			}
			if !actual[field.DBName] {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed — missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
