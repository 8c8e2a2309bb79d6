package specification

import "gorm.io/gorm"

// ByRecordID matches catalog records, whose keys are strings rather than uuids
type ByRecordID struct {
	ID string
}

func (s ByRecordID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

type ByAccessLevel struct {
	Level string
}

func (s ByAccessLevel) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("access_level = ?", s.Level)
}
