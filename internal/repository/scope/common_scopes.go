package scope

import "gorm.io/gorm"

func OrderByTimestampDesc(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp DESC")
}

// DistinctUsers reduces a conversation query to one row per (username, email) pair.
func DistinctUsers(db *gorm.DB) *gorm.DB {
	return db.Distinct("username", "email").Order("username ASC").Order("email ASC")
}
