package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// catalogTables maps each entity to its backing table. The engine-config
// bridge keeps the upstream's double-"to" table name.
var catalogTables = map[domain.CatalogEntity]string{
	domain.EntityYear:               "vcdb_year",
	domain.EntityMake:               "vcdb_make",
	domain.EntityVehicleTypeGroup:   "vcdb_vehicletypegroup",
	domain.EntityVehicleType:        "vcdb_vehicletype",
	domain.EntityModel:              "vcdb_model",
	domain.EntityRegion:             "vcdb_region",
	domain.EntityDriveType:          "vcdb_drivetype",
	domain.EntityBodyStyleConfig:    "vcdb_bodystyleconfig",
	domain.EntityEngineConfig:       "vcdb_engineconfig",
	domain.EntityBaseVehicle:        "vcdb_basevehicle",
	domain.EntityVehicle:            "vcdb_vehicle",
	domain.EntityVehicleToDriveType: "vcdb_vehicletodrivetype",
	domain.EntityVehicleToBodyStyle: "vcdb_vehicletobodystyleconfig",
	domain.EntityVehicleToEngine:    "vcdb_vehicletotoengineconfig",
}

// CountCatalog returns the row count of the entity's table.
func (s *Store) CountCatalog(ctx context.Context, entity domain.CatalogEntity) (int, error) {
	table, ok := catalogTables[entity]
	if !ok {
		return 0, store.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown catalog entity %q", entity))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// DeleteCatalogRow removes one row by its remote id. Nothing in the sync
// path calls this; it exists for an explicit upstream tombstone signal.
func (s *Store) DeleteCatalogRow(ctx context.Context, entity domain.CatalogEntity, remoteID int) error {
	table, ok := catalogTables[entity]
	if !ok {
		return store.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown catalog entity %q", entity))
	}

	var stmt string
	switch entity {
	case domain.EntityVehicleToDriveType, domain.EntityVehicleToBodyStyle, domain.EntityVehicleToEngine:
		stmt = `DELETE FROM ` + table + ` WHERE vehicle_id = ?`
	default:
		// Every non-bridge table's primary key is its first column.
		stmt = `DELETE FROM ` + table + ` WHERE rowid IN (SELECT rowid FROM ` + table + ` WHERE ` + primaryKeyColumn(entity) + ` = ?)`
	}

	if _, err := s.db.ExecContext(ctx, stmt, remoteID); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func primaryKeyColumn(entity domain.CatalogEntity) string {
	switch entity {
	case domain.EntityYear:
		return "year_id"
	case domain.EntityMake:
		return "make_id"
	case domain.EntityVehicleTypeGroup:
		return "group_id"
	case domain.EntityVehicleType:
		return "vehicle_type_id"
	case domain.EntityModel:
		return "model_id"
	case domain.EntityRegion:
		return "region_id"
	case domain.EntityDriveType:
		return "drive_type_id"
	case domain.EntityBodyStyleConfig:
		return "body_style_config_id"
	case domain.EntityEngineConfig:
		return "engine_config_id"
	case domain.EntityBaseVehicle:
		return "base_vehicle_id"
	case domain.EntityVehicle:
		return "vehicle_id"
	default:
		return ""
	}
}

// Upserts. All keyed by the stable remote id, so repeating an upsert N times
// equals doing it once.

// UpsertYear inserts or updates a model year.
func (s *Store) UpsertYear(ctx context.Context, y *domain.Year) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_year (year_id, value) VALUES (?, ?)
		ON CONFLICT(year_id) DO UPDATE SET value = excluded.value`,
		y.YearID, y.Value)
	if err != nil {
		return fmt.Errorf("upsert year %d: %w", y.YearID, err)
	}
	return nil
}

// UpsertMake inserts or updates a make and refreshes its search document.
func (s *Store) UpsertMake(ctx context.Context, m *domain.Make) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_make (make_id, name) VALUES (?, ?)
		ON CONFLICT(make_id) DO UPDATE SET name = excluded.name`,
		m.MakeID, m.Name)
	if err != nil {
		return fmt.Errorf("upsert make %d: %w", m.MakeID, err)
	}
	if err := s.indexer.IndexMake(m); err != nil {
		s.logger.Warn("index make failed", "make_id", m.MakeID, "error", err)
	}
	return nil
}

// UpsertVehicleTypeGroup inserts or updates a vehicle type group.
func (s *Store) UpsertVehicleTypeGroup(ctx context.Context, g *domain.VehicleTypeGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_vehicletypegroup (group_id, name) VALUES (?, ?)
		ON CONFLICT(group_id) DO UPDATE SET name = excluded.name`,
		g.GroupID, g.Name)
	if err != nil {
		return fmt.Errorf("upsert vehicle type group %d: %w", g.GroupID, err)
	}
	return nil
}

// UpsertVehicleType inserts or updates a vehicle type.
func (s *Store) UpsertVehicleType(ctx context.Context, t *domain.VehicleType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_vehicletype (vehicle_type_id, name, group_id) VALUES (?, ?, ?)
		ON CONFLICT(vehicle_type_id) DO UPDATE SET name = excluded.name, group_id = excluded.group_id`,
		t.VehicleTypeID, t.Name, t.GroupID)
	if err != nil {
		return fmt.Errorf("upsert vehicle type %d: %w", t.VehicleTypeID, err)
	}
	return nil
}

// UpsertModel inserts or updates a model and refreshes its search document.
func (s *Store) UpsertModel(ctx context.Context, m *domain.Model) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_model (model_id, name, vehicle_type_id) VALUES (?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET name = excluded.name, vehicle_type_id = excluded.vehicle_type_id`,
		m.ModelID, m.Name, m.VehicleTypeID)
	if err != nil {
		return fmt.Errorf("upsert model %d: %w", m.ModelID, err)
	}

	typeName := ""
	if t, err := s.GetVehicleType(ctx, m.VehicleTypeID); err == nil {
		typeName = t.Name
	}
	if err := s.indexer.IndexModel(m, typeName); err != nil {
		s.logger.Warn("index model failed", "model_id", m.ModelID, "error", err)
	}
	return nil
}

// UpsertRegion inserts or updates a region.
func (s *Store) UpsertRegion(ctx context.Context, r *domain.Region) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_region (region_id, name) VALUES (?, ?)
		ON CONFLICT(region_id) DO UPDATE SET name = excluded.name`,
		r.RegionID, r.Name)
	if err != nil {
		return fmt.Errorf("upsert region %d: %w", r.RegionID, err)
	}
	return nil
}

// UpsertDriveType inserts or updates a drive type.
func (s *Store) UpsertDriveType(ctx context.Context, d *domain.DriveType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_drivetype (drive_type_id, name) VALUES (?, ?)
		ON CONFLICT(drive_type_id) DO UPDATE SET name = excluded.name`,
		d.DriveTypeID, d.Name)
	if err != nil {
		return fmt.Errorf("upsert drive type %d: %w", d.DriveTypeID, err)
	}
	return nil
}

// UpsertBodyStyleConfig inserts or updates a body style config.
func (s *Store) UpsertBodyStyleConfig(ctx context.Context, b *domain.BodyStyleConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_bodystyleconfig (body_style_config_id, name) VALUES (?, ?)
		ON CONFLICT(body_style_config_id) DO UPDATE SET name = excluded.name`,
		b.BodyStyleConfigID, b.Name)
	if err != nil {
		return fmt.Errorf("upsert body style config %d: %w", b.BodyStyleConfigID, err)
	}
	return nil
}

// UpsertEngineConfig inserts or updates an engine config.
func (s *Store) UpsertEngineConfig(ctx context.Context, e *domain.EngineConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_engineconfig (engine_config_id, name) VALUES (?, ?)
		ON CONFLICT(engine_config_id) DO UPDATE SET name = excluded.name`,
		e.EngineConfigID, e.Name)
	if err != nil {
		return fmt.Errorf("upsert engine config %d: %w", e.EngineConfigID, err)
	}
	return nil
}

// UpsertBaseVehicle inserts or updates a base vehicle.
func (s *Store) UpsertBaseVehicle(ctx context.Context, b *domain.BaseVehicle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_basevehicle (base_vehicle_id, year_id, make_id, model_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(base_vehicle_id) DO UPDATE SET
			year_id = excluded.year_id,
			make_id = excluded.make_id,
			model_id = excluded.model_id`,
		b.BaseVehicleID, b.YearID, b.MakeID, b.ModelID)
	if err != nil {
		return fmt.Errorf("upsert base vehicle %d: %w", b.BaseVehicleID, err)
	}
	return nil
}

// UpsertVehicle inserts or updates a vehicle.
func (s *Store) UpsertVehicle(ctx context.Context, v *domain.Vehicle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_vehicle (vehicle_id, base_vehicle_id, region_id) VALUES (?, ?, ?)
		ON CONFLICT(vehicle_id) DO UPDATE SET
			base_vehicle_id = excluded.base_vehicle_id,
			region_id = excluded.region_id`,
		v.VehicleID, v.BaseVehicleID, v.RegionID)
	if err != nil {
		return fmt.Errorf("upsert vehicle %d: %w", v.VehicleID, err)
	}
	return nil
}

// UpsertVehicleToDriveType inserts a vehicle/drive-type bridge row.
func (s *Store) UpsertVehicleToDriveType(ctx context.Context, r *domain.VehicleToDriveType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_vehicletodrivetype (vehicle_id, drive_type_id) VALUES (?, ?)
		ON CONFLICT(vehicle_id, drive_type_id) DO NOTHING`,
		r.VehicleID, r.DriveTypeID)
	if err != nil {
		return fmt.Errorf("upsert vehicle_to_drive_type (%d,%d): %w", r.VehicleID, r.DriveTypeID, err)
	}
	return nil
}

// UpsertVehicleToBodyStyleConfig inserts a vehicle/body-style bridge row.
func (s *Store) UpsertVehicleToBodyStyleConfig(ctx context.Context, r *domain.VehicleToBodyStyleConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_vehicletobodystyleconfig (vehicle_id, body_style_config_id) VALUES (?, ?)
		ON CONFLICT(vehicle_id, body_style_config_id) DO NOTHING`,
		r.VehicleID, r.BodyStyleConfigID)
	if err != nil {
		return fmt.Errorf("upsert vehicle_to_body_style (%d,%d): %w", r.VehicleID, r.BodyStyleConfigID, err)
	}
	return nil
}

// UpsertVehicleToEngineConfig inserts a vehicle/engine bridge row.
func (s *Store) UpsertVehicleToEngineConfig(ctx context.Context, r *domain.VehicleToEngineConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vcdb_vehicletotoengineconfig (vehicle_id, engine_config_id) VALUES (?, ?)
		ON CONFLICT(vehicle_id, engine_config_id) DO NOTHING`,
		r.VehicleID, r.EngineConfigID)
	if err != nil {
		return fmt.Errorf("upsert vehicle_to_engine (%d,%d): %w", r.VehicleID, r.EngineConfigID, err)
	}
	return nil
}

// Reads shaped by the lookup indexes.

// GetVehicleType retrieves a vehicle type by id.
func (s *Store) GetVehicleType(ctx context.Context, vehicleTypeID int) (*domain.VehicleType, error) {
	var t domain.VehicleType
	err := s.db.QueryRowContext(ctx,
		`SELECT vehicle_type_id, name, group_id FROM vcdb_vehicletype WHERE vehicle_type_id = ?`,
		vehicleTypeID).Scan(&t.VehicleTypeID, &t.Name, &t.GroupID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetVehicleTypesByGroup returns all vehicle types in a group
// (idx_vehicle_type_group).
func (s *Store) GetVehicleTypesByGroup(ctx context.Context, groupID int) ([]*domain.VehicleType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vehicle_type_id, name, group_id FROM vcdb_vehicletype WHERE group_id = ? ORDER BY vehicle_type_id`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*domain.VehicleType
	for rows.Next() {
		var t domain.VehicleType
		if err := rows.Scan(&t.VehicleTypeID, &t.Name, &t.GroupID); err != nil {
			return nil, err
		}
		types = append(types, &t)
	}
	return types, rows.Err()
}

// GetVehiclesByBaseVehicle returns the concrete vehicles of a base vehicle
// (idx_vehicle_base_vehicle).
func (s *Store) GetVehiclesByBaseVehicle(ctx context.Context, baseVehicleID int) ([]*domain.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vehicle_id, base_vehicle_id, region_id FROM vcdb_vehicle WHERE base_vehicle_id = ? ORDER BY vehicle_id`,
		baseVehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVehicles(rows)
}

// GetVehiclesByRegion returns all vehicles in a region (idx_vehicle_region).
func (s *Store) GetVehiclesByRegion(ctx context.Context, regionID int) ([]*domain.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vehicle_id, base_vehicle_id, region_id FROM vcdb_vehicle WHERE region_id = ? ORDER BY vehicle_id`,
		regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVehicles(rows)
}

func scanVehicles(rows *sql.Rows) ([]*domain.Vehicle, error) {
	var vehicles []*domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.VehicleID, &v.BaseVehicleID, &v.RegionID); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, &v)
	}
	return vehicles, rows.Err()
}

// BaseVehicleFilter narrows FindBaseVehicles. Zero fields are not filtered.
type BaseVehicleFilter struct {
	YearID  int
	MakeID  int
	ModelID int
}

// FindBaseVehicles returns base vehicles matching the filter. Year+make is
// served by idx_base_vehicle_year_make, make+model by
// idx_base_vehicle_make_model.
func (s *Store) FindBaseVehicles(ctx context.Context, f BaseVehicleFilter) ([]*domain.BaseVehicle, error) {
	query := `SELECT base_vehicle_id, year_id, make_id, model_id FROM vcdb_basevehicle WHERE 1=1`
	var args []any
	if f.YearID != 0 {
		query += ` AND year_id = ?`
		args = append(args, f.YearID)
	}
	if f.MakeID != 0 {
		query += ` AND make_id = ?`
		args = append(args, f.MakeID)
	}
	if f.ModelID != 0 {
		query += ` AND model_id = ?`
		args = append(args, f.ModelID)
	}
	query += ` ORDER BY base_vehicle_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bvs []*domain.BaseVehicle
	for rows.Next() {
		var b domain.BaseVehicle
		if err := rows.Scan(&b.BaseVehicleID, &b.YearID, &b.MakeID, &b.ModelID); err != nil {
			return nil, err
		}
		bvs = append(bvs, &b)
	}
	return bvs, rows.Err()
}

// VehicleExists reports whether a vehicle row exists. Used to keep
// NormalizationResult.chosen_vehicle_id resolvable.
func (s *Store) VehicleExists(ctx context.Context, vehicleID int) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM vcdb_vehicle WHERE vehicle_id = ?`, vehicleID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetDriveTypesForVehicle resolves the drive-type bridge for one vehicle.
func (s *Store) GetDriveTypesForVehicle(ctx context.Context, vehicleID int) ([]*domain.DriveType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.drive_type_id, d.name
		FROM vcdb_vehicletodrivetype b
		JOIN vcdb_drivetype d ON d.drive_type_id = b.drive_type_id
		WHERE b.vehicle_id = ?
		ORDER BY d.drive_type_id`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dts []*domain.DriveType
	for rows.Next() {
		var d domain.DriveType
		if err := rows.Scan(&d.DriveTypeID, &d.Name); err != nil {
			return nil, err
		}
		dts = append(dts, &d)
	}
	return dts, rows.Err()
}

// GetVehiclesForDriveType resolves the drive-type bridge in the other
// direction.
func (s *Store) GetVehiclesForDriveType(ctx context.Context, driveTypeID int) ([]*domain.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.vehicle_id, v.base_vehicle_id, v.region_id
		FROM vcdb_vehicletodrivetype b
		JOIN vcdb_vehicle v ON v.vehicle_id = b.vehicle_id
		WHERE b.drive_type_id = ?
		ORDER BY v.vehicle_id`, driveTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVehicles(rows)
}

// GetMake retrieves a make by id.
func (s *Store) GetMake(ctx context.Context, makeID int) (*domain.Make, error) {
	var m domain.Make
	err := s.db.QueryRowContext(ctx,
		`SELECT make_id, name FROM vcdb_make WHERE make_id = ?`, makeID).Scan(&m.MakeID, &m.Name)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetModel retrieves a model by id.
func (s *Store) GetModel(ctx context.Context, modelID int) (*domain.Model, error) {
	var m domain.Model
	err := s.db.QueryRowContext(ctx,
		`SELECT model_id, name, vehicle_type_id FROM vcdb_model WHERE model_id = ?`,
		modelID).Scan(&m.ModelID, &m.Name, &m.VehicleTypeID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetYear retrieves a year row by id.
func (s *Store) GetYear(ctx context.Context, yearID int) (*domain.Year, error) {
	var y domain.Year
	err := s.db.QueryRowContext(ctx,
		`SELECT year_id, value FROM vcdb_year WHERE year_id = ?`, yearID).Scan(&y.YearID, &y.Value)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &y, nil
}

// GetBaseVehicle retrieves a base vehicle by id.
func (s *Store) GetBaseVehicle(ctx context.Context, baseVehicleID int) (*domain.BaseVehicle, error) {
	var b domain.BaseVehicle
	err := s.db.QueryRowContext(ctx,
		`SELECT base_vehicle_id, year_id, make_id, model_id FROM vcdb_basevehicle WHERE base_vehicle_id = ?`,
		baseVehicleID).Scan(&b.BaseVehicleID, &b.YearID, &b.MakeID, &b.ModelID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetYearByValue retrieves a year row by its calendar value.
func (s *Store) GetYearByValue(ctx context.Context, value int) (*domain.Year, error) {
	var y domain.Year
	err := s.db.QueryRowContext(ctx,
		`SELECT year_id, value FROM vcdb_year WHERE value = ?`, value).Scan(&y.YearID, &y.Value)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &y, nil
}

// ListMakes returns all makes ordered by name.
func (s *Store) ListMakes(ctx context.Context) ([]*domain.Make, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT make_id, name FROM vcdb_make ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var makes []*domain.Make
	for rows.Next() {
		var m domain.Make
		if err := rows.Scan(&m.MakeID, &m.Name); err != nil {
			return nil, err
		}
		makes = append(makes, &m)
	}
	return makes, rows.Err()
}

// ListModels returns all models ordered by name.
func (s *Store) ListModels(ctx context.Context) ([]*domain.Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, name, vehicle_type_id FROM vcdb_model ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*domain.Model
	for rows.Next() {
		var m domain.Model
		if err := rows.Scan(&m.ModelID, &m.Name, &m.VehicleTypeID); err != nil {
			return nil, err
		}
		models = append(models, &m)
	}
	return models, rows.Err()
}
