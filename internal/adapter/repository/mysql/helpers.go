// Package mysql implements every domain Repository against gorm.io/gorm,
// one file per entity: one GORM-backed repo struct per aggregate, CAS-style
// updates for versioned rows.
package mysql

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// withUpdateLock adds a SELECT ... FOR UPDATE clause for real MySQL
// sessions. SQLite (used by the repository test suite) has no row-locking
// clause; the version-CAS update is what actually serializes writers there,
// so skipping the clause under sqlite changes nothing observable.
func withUpdateLock(db *gorm.DB) *gorm.DB {
	if _, ok := db.Dialector.(*sqlite.Dialector); ok {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
