package db

import "gorm.io/gorm"

// LockSuffix returns the row-locking clause for raw SELECTs. SQLite has a
// single writer and no FOR UPDATE syntax, so it gets no clause.
func LockSuffix(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
