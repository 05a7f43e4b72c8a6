package sensors

import (
	"gorm.io/gorm"
)

type SensorType struct {
	gorm.Model `json:"-"`

	Name string `gorm:"uniqueIndex" json:"name"`
	Unit string `json:"unit"`
}

type Neighborhood struct {
	gorm.Model `json:"-"`

	Name     string `gorm:"uniqueIndex" json:"name"`
	District string `json:"district"`
}

type Sensor struct {
	gorm.Model `json:"-"`

	Name   string `gorm:"uniqueIndex" json:"name"`
	Active bool   `json:"active"`

	SensorTypeID uint       `gorm:"foreignKey:SensorTypeID" json:"-"`
	SensorType   SensorType `json:"sensorType"`

	NeighborhoodID uint         `gorm:"foreignKey:NeighborhoodID" json:"-"`
	Neighborhood   Neighborhood `json:"neighborhood"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Sensor) BeforeSave(tx *gorm.DB) (err error) {
	if s.SensorTypeID == 0 && s.SensorType.ID == 0 {
		existing := SensorType{}
		result := tx.Where(&SensorType{Name: s.SensorType.Name}).First(&existing)
		if result.RowsAffected > 0 {
			s.SensorType = existing
			s.SensorTypeID = existing.ID
		}
	}

	if s.NeighborhoodID == 0 && s.Neighborhood.ID == 0 {
		existing := Neighborhood{}
		result := tx.Where(&Neighborhood{Name: s.Neighborhood.Name}).First(&existing)
		if result.RowsAffected > 0 {
			s.Neighborhood = existing
			s.NeighborhoodID = existing.ID
		}
	}

	return nil
}
