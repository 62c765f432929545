package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Site{},
	&Fix{},
	&Performance{},
}

var DatabaseModelsSQLite = []any{
	&Site{},
	&Fix{},
	&Performance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Site is an observer installation. Fixes reference the site they were located from.
type Site struct {
	gorm.Model
	Name       string     `json:"name" gorm:"size:127;uniqueIndex"`
	Baseline   float64    `json:"baseline"`
	Location   geom.Point `json:"location"`
	HeadingDeg float64    `json:"headingDeg"`
	Fixes      []Fix      `json:"-"`
}

func (*Site) TableName() string {
	return "sites"
}

// Performance is a periodic sample of the locator's write pipeline.
type Performance struct {
	Time                time.Time `json:"time" gorm:"index:idx_performance_time"`
	SiteID              uint      `json:"siteId" gorm:"index:idx_performance_site_id"`
	Site                Site      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SiteID;"`
	FixQueue            uint16    `json:"fixQueue"`
	LeftObservers       uint16    `json:"leftObservers"`
	RightObservers      uint16    `json:"rightObservers"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

////////////////////////
// FIXES
////////////////////////

// Fix is one located point. Position is stored in the local observer frame;
// GeoLocation is empty unless the site is georeferenced.
type Fix struct {
	ID                            uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt                     time.Time      `json:"-"`
	SiteID                        uint           `json:"siteId" gorm:"index:idx_fix_site_id"`
	Site                          Site           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SiteID;"`
	AttemptID                     string         `json:"attemptId" gorm:"size:36;uniqueIndex"`
	Time                          time.Time      `json:"time" gorm:"index:idx_fix_time"`
	DurationMs                    float32        `json:"durationMs"`
	Baseline                      float64        `json:"baseline"`
	Position                      geom.Point     `json:"position"`
	Angles                        datatypes.JSON `json:"angles" gorm:"type:jsonb;default:'{}'"`
	AbsVerticalAngleDifferenceRad float64        `json:"absVerticalAngleDifferenceRad"`
	VerticalToleranceRad          float64        `json:"verticalToleranceRad"`
	VerticalToleranceExceeded     bool           `json:"verticalToleranceExceeded"`
	GeoLocation                   geom.Point     `json:"geoLocation"`
}

func (*Fix) TableName() string {
	return "fixes"
}
