package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&MachineInfo{},
	&Program{},
	&OriginGeometry{},
	&TraceSample{},
	&WritePerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// MachineInfo describes the machine the archive belongs to
type MachineInfo struct {
	gorm.Model
	MachineName string `json:"machineName" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
	Units       string `json:"units" gorm:"size:8"`
}

func (*MachineInfo) TableName() string {
	return "machine_infos"
}

// WritePerformance is the model for archive writer metrics
type WritePerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_writeperf_time"`
	ProgramID           uint              `json:"programId" gorm:"index:idx_writeperf_program_id"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*WritePerformance) TableName() string {
	return "write_performances"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Geometries uint32 `json:"geometries"`
	Samples    uint32 `json:"samples"`
}

////////////////////////
// PLOT MODELS
////////////////////////

// Program is one successful or failed program load
type Program struct {
	gorm.Model
	Name       string         `json:"name" gorm:"size:127;index:idx_program_name"`
	Path       string         `json:"path" gorm:"size:255"`
	Units      string         `json:"units" gorm:"size:8"`
	LoadedAt   time.Time      `json:"loadedAt"`
	EndedAt    sql.NullTime   `json:"endedAt" gorm:"default:NULL"`
	DurationMs float64        `json:"durationMs"`
	Status     int            `json:"status"`
	StatusText string         `json:"statusText" gorm:"size:64"`
	Line       int            `json:"line"`
	Recorded   int            `json:"recorded"`
	Suppressed int            `json:"suppressed"`
	Stats      datatypes.JSON `json:"stats" gorm:"default:'{}'"`
}

func (*Program) TableName() string {
	return "programs"
}

// OriginGeometry is the compiled polyline of one origin. Vertices, Lines and Colors
// hold the exact render arrays; Path holds the placed polyline for spatial queries.
type OriginGeometry struct {
	ID         uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	ProgramID  uint    `json:"programId" gorm:"index:idx_geometry_program_id"`
	Program    Program `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:ProgramID;"`
	Origin     string  `json:"origin" gorm:"size:8"`
	OriginCode int     `json:"originCode"`

	Vertices  datatypes.JSON `json:"vertices"`
	Lines     datatypes.JSON `json:"lines"`
	Colors    datatypes.JSON `json:"colors"`
	Transform datatypes.JSON `json:"transform"`

	Path        geom.Geometry `json:"-"` // MultiLineString Z, one line string per motion run
	NumVertices int           `json:"numVertices"`
	NumEdges    int           `json:"numEdges"`
	Length      float64       `json:"length"` // XY length of Path
	MinX        float64       `json:"minX"`
	MinY        float64       `json:"minY"`
	MinZ        float64       `json:"minZ"`
	MaxX        float64       `json:"maxX"`
	MaxY        float64       `json:"maxY"`
	MaxZ        float64       `json:"maxZ"`
}

func (*OriginGeometry) TableName() string {
	return "origin_geometries"
}

// TraceSample is one polled tool tip
type TraceSample struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time" gorm:"index:idx_trace_time"`
	ProgramID uint       `json:"programId" gorm:"index:idx_trace_program_id"`
	Seq       uint       `json:"seq"`
	Tool      int        `json:"tool"`
	Position  geom.Point `json:"position"` // tool tip, XY
	Z         float64    `json:"z"`
}

func (*TraceSample) TableName() string {
	return "trace_samples"
}
