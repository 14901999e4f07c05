// Package domain defines the core entities of the fitment server: the VCDB
// catalog rows mirrored from the upstream AutoCare API, normalization jobs
// and their results, sync runs, and tenant records.
package domain

// CatalogEntity names one of the synced VCDB entity types. The values are
// used as stable keys in sync checkpoints and entity-count maps.
type CatalogEntity string

// Catalog entity types, in no particular order. See SyncOrder for the
// dependency-ordered list the sync engine processes.
const (
	EntityYear               CatalogEntity = "year"
	EntityMake               CatalogEntity = "make"
	EntityVehicleTypeGroup   CatalogEntity = "vehicle_type_group"
	EntityVehicleType        CatalogEntity = "vehicle_type"
	EntityModel              CatalogEntity = "model"
	EntityRegion             CatalogEntity = "region"
	EntityDriveType          CatalogEntity = "drive_type"
	EntityBodyStyleConfig    CatalogEntity = "body_style_config"
	EntityEngineConfig       CatalogEntity = "engine_config"
	EntityBaseVehicle        CatalogEntity = "base_vehicle"
	EntityVehicle            CatalogEntity = "vehicle"
	EntityVehicleToDriveType CatalogEntity = "vehicle_to_drive_type"
	EntityVehicleToBodyStyle CatalogEntity = "vehicle_to_body_style_config"
	EntityVehicleToEngine    CatalogEntity = "vehicle_to_engine_config"
)

// SyncOrder is the fixed order in which entities are synced. Parents come
// before children so every foreign-key target exists before a referencing
// row is upserted; the three bridge tables come last.
var SyncOrder = []CatalogEntity{
	EntityYear,
	EntityMake,
	EntityVehicleTypeGroup,
	EntityVehicleType,
	EntityModel,
	EntityRegion,
	EntityDriveType,
	EntityBodyStyleConfig,
	EntityEngineConfig,
	EntityBaseVehicle,
	EntityVehicle,
	EntityVehicleToDriveType,
	EntityVehicleToBodyStyle,
	EntityVehicleToEngine,
}

// Year is a model year. The remote YearID doubles as the value for upstream
// data, but the two are kept separate because upstream reserves the right to
// renumber.
type Year struct {
	YearID int `json:"year_id"`
	Value  int `json:"value"`
}

// Make is a vehicle manufacturer.
type Make struct {
	MakeID int    `json:"make_id"`
	Name   string `json:"name"`
}

// VehicleTypeGroup groups vehicle types (e.g. "Light Duty").
type VehicleTypeGroup struct {
	GroupID int    `json:"group_id"`
	Name    string `json:"name"`
}

// VehicleType classifies models (e.g. "Truck", "Sedan").
type VehicleType struct {
	VehicleTypeID int    `json:"vehicle_type_id"`
	Name          string `json:"name"`
	GroupID       int    `json:"group_id"`
}

// Model is a vehicle model belonging to a vehicle type.
type Model struct {
	ModelID       int    `json:"model_id"`
	Name          string `json:"name"`
	VehicleTypeID int    `json:"vehicle_type_id"`
}

// Region is a sales region (e.g. "United States").
type Region struct {
	RegionID int    `json:"region_id"`
	Name     string `json:"name"`
}

// DriveType describes a drivetrain (e.g. "4WD").
type DriveType struct {
	DriveTypeID int    `json:"drive_type_id"`
	Name        string `json:"name"`
}

// BodyStyleConfig describes a body style configuration.
type BodyStyleConfig struct {
	BodyStyleConfigID int    `json:"body_style_config_id"`
	Name              string `json:"name"`
}

// EngineConfig describes an engine configuration.
type EngineConfig struct {
	EngineConfigID int    `json:"engine_config_id"`
	Name           string `json:"name"`
}

// BaseVehicle is a (year, make, model) triple, the anchor of the catalog.
type BaseVehicle struct {
	BaseVehicleID int `json:"base_vehicle_id"`
	YearID        int `json:"year_id"`
	MakeID        int `json:"make_id"`
	ModelID       int `json:"model_id"`
}

// Vehicle adds a region to a BaseVehicle. Drive, body, and engine configs
// attach through the bridge rows below, never as in-memory object graphs.
type Vehicle struct {
	VehicleID     int `json:"vehicle_id"`
	BaseVehicleID int `json:"base_vehicle_id"`
	RegionID      int `json:"region_id"`
}

// VehicleToDriveType joins a vehicle to a drive type.
type VehicleToDriveType struct {
	VehicleID   int `json:"vehicle_id"`
	DriveTypeID int `json:"drive_type_id"`
}

// VehicleToBodyStyleConfig joins a vehicle to a body style config.
type VehicleToBodyStyleConfig struct {
	VehicleID         int `json:"vehicle_id"`
	BodyStyleConfigID int `json:"body_style_config_id"`
}

// VehicleToEngineConfig joins a vehicle to an engine config. The backing
// table keeps upstream's misspelled name (vcdb_vehicletotoengineconfig).
type VehicleToEngineConfig struct {
	VehicleID      int `json:"vehicle_id"`
	EngineConfigID int `json:"engine_config_id"`
}
