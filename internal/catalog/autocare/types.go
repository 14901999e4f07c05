package autocare

// Wire types for the upstream enumeration API. Each record carries the
// stable remote id that keys the local catalog table.

type yearRecord struct {
	YearID int `json:"yearId"`
	Year   int `json:"year"`
}

type makeRecord struct {
	MakeID   int    `json:"makeId"`
	MakeName string `json:"makeName"`
}

type vehicleTypeGroupRecord struct {
	GroupID   int    `json:"vehicleTypeGroupId"`
	GroupName string `json:"vehicleTypeGroupName"`
}

type vehicleTypeRecord struct {
	VehicleTypeID int    `json:"vehicleTypeId"`
	Name          string `json:"vehicleTypeName"`
	GroupID       int    `json:"vehicleTypeGroupId"`
}

type modelRecord struct {
	ModelID       int    `json:"modelId"`
	ModelName     string `json:"modelName"`
	VehicleTypeID int    `json:"vehicleTypeId"`
}

type regionRecord struct {
	RegionID   int    `json:"regionId"`
	RegionName string `json:"regionName"`
}

type driveTypeRecord struct {
	DriveTypeID int    `json:"driveTypeId"`
	Name        string `json:"driveTypeName"`
}

type bodyStyleConfigRecord struct {
	BodyStyleConfigID int    `json:"bodyStyleConfigId"`
	Name              string `json:"bodyStyleConfigName"`
}

type engineConfigRecord struct {
	EngineConfigID int    `json:"engineConfigId"`
	Name           string `json:"engineConfigName"`
}

type baseVehicleRecord struct {
	BaseVehicleID int `json:"baseVehicleId"`
	YearID        int `json:"yearId"`
	MakeID        int `json:"makeId"`
	ModelID       int `json:"modelId"`
}

type vehicleRecord struct {
	VehicleID     int `json:"vehicleId"`
	BaseVehicleID int `json:"baseVehicleId"`
	RegionID      int `json:"regionId"`
}

type vehicleToDriveTypeRecord struct {
	VehicleID   int `json:"vehicleId"`
	DriveTypeID int `json:"driveTypeId"`
}

type vehicleToBodyStyleConfigRecord struct {
	VehicleID         int `json:"vehicleId"`
	BodyStyleConfigID int `json:"bodyStyleConfigId"`
}

type vehicleToEngineConfigRecord struct {
	VehicleID      int `json:"vehicleId"`
	EngineConfigID int `json:"engineConfigId"`
}

// pageEnvelope is the upstream paging wrapper. Enumeration stops when a page
// comes back with fewer than pageSize items.
type pageEnvelope[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
