package models

import "time"

// Apple is one cultivar entry in the public catalog.
type Apple struct {
	ID             string         `gorm:"primaryKey;size:64" bson:"_id" json:"id"`
	Acno           string         `gorm:"size:64" bson:"acno" json:"acno"`
	Accession      string         `gorm:"size:64;index" bson:"accession" json:"accession"`
	CultivarName   string         `gorm:"size:255;index" bson:"cultivar_name" json:"cultivar_name"`
	OriginCountry  string         `gorm:"size:128" bson:"origin_country" json:"origin_country"`
	OriginProvince string         `gorm:"size:128" bson:"origin_province" json:"origin_province"`
	OriginCity     string         `gorm:"size:128" bson:"origin_city" json:"origin_city"`
	Genus          string         `gorm:"size:64" bson:"genus" json:"genus"`
	Species        string         `gorm:"size:64" bson:"species" json:"species"`
	Images         []string       `gorm:"serializer:json;type:text" bson:"images" json:"images"`
	Extra          map[string]any `gorm:"serializer:json;type:text" bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Apple) TableName() string {
	return "apples"
}
