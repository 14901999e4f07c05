// Package autocare is a rate-limited client for the upstream VCDB catalog
// enumeration API. It exposes one paged enumeration per catalog entity and
// classifies failures for the sync engine; it never retries on its own.
package autocare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/ratelimit"
)

const (
	// Rate limit per upstream host; the catalog API meters by subscription.
	defaultRPS   = 4.0
	defaultBurst = 8

	defaultPageSize = 500
)

// Client enumerates the upstream catalog.
type Client struct {
	baseURL  *url.URL
	clientID string
	secret   string
	pageSize int

	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// New creates an AutoCare client from configuration.
func New(cfg config.AutoCareConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse autocare base url: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Client{
		baseURL:  base,
		clientID: cfg.ClientID,
		secret:   cfg.ClientSecret,
		pageSize: pageSize,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// entityPaths maps each catalog entity to its upstream resource path.
var entityPaths = map[domain.CatalogEntity]string{
	domain.EntityYear:               "/vcdb/years",
	domain.EntityMake:               "/vcdb/makes",
	domain.EntityVehicleTypeGroup:   "/vcdb/vehicle-type-groups",
	domain.EntityVehicleType:        "/vcdb/vehicle-types",
	domain.EntityModel:              "/vcdb/models",
	domain.EntityRegion:             "/vcdb/regions",
	domain.EntityDriveType:          "/vcdb/drive-types",
	domain.EntityBodyStyleConfig:    "/vcdb/body-style-configs",
	domain.EntityEngineConfig:       "/vcdb/engine-configs",
	domain.EntityBaseVehicle:        "/vcdb/base-vehicles",
	domain.EntityVehicle:            "/vcdb/vehicles",
	domain.EntityVehicleToDriveType: "/vcdb/vehicle-to-drive-types",
	domain.EntityVehicleToBodyStyle: "/vcdb/vehicle-to-body-style-configs",
	domain.EntityVehicleToEngine:    "/vcdb/vehicle-to-engine-configs",
}

// doRequest fetches one page of an entity resource with rate limiting.
func (c *Client) doRequest(ctx context.Context, path string, page int) ([]byte, error) {
	if err := c.limiter.Wait(ctx, c.baseURL.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Client-Secret", c.secret)

	c.logger.Debug("autocare request", "path", path, "page", page)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: "enumerate", Path: path, Page: page, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "enumerate", Path: path, Page: page, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Op: "enumerate", Path: path, Page: page, Err: ErrAuth}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Op: "enumerate", Path: path, Page: page, Err: ErrRateLimited}
	case resp.StatusCode >= 500:
		return nil, &Error{Op: "enumerate", Path: path, Page: page, Err: ErrServer}
	case resp.StatusCode >= 400:
		return nil, &Error{Op: "enumerate", Path: path, Page: page, Err: ErrBadRequest}
	default:
		return nil, &Error{Op: "enumerate", Path: path, Page: page,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// enumerate walks every page of a resource, invoking fn once per record.
// Memory stays bounded at one page; the walk is not restartable mid-call.
func enumerate[T any](ctx context.Context, c *Client, path string, fn func(T) error) error {
	for page := 1; ; page++ {
		body, err := c.doRequest(ctx, path, page)
		if err != nil {
			return err
		}

		var env pageEnvelope[T]
		if err := json.Unmarshal(body, &env); err != nil {
			return &Error{Op: "enumerate", Path: path, Page: page,
				Err: fmt.Errorf("decode page: %w", err)}
		}

		for _, item := range env.Items {
			if err := fn(item); err != nil {
				return err
			}
		}

		if len(env.Items) < c.pageSize {
			return nil
		}
	}
}

// EnumerateYears streams all model years.
func (c *Client) EnumerateYears(ctx context.Context, fn func(*domain.Year) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityYear], func(r yearRecord) error {
		return fn(&domain.Year{YearID: r.YearID, Value: r.Year})
	})
}

// EnumerateMakes streams all makes.
func (c *Client) EnumerateMakes(ctx context.Context, fn func(*domain.Make) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityMake], func(r makeRecord) error {
		return fn(&domain.Make{MakeID: r.MakeID, Name: r.MakeName})
	})
}

// EnumerateVehicleTypeGroups streams all vehicle type groups.
func (c *Client) EnumerateVehicleTypeGroups(ctx context.Context, fn func(*domain.VehicleTypeGroup) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityVehicleTypeGroup], func(r vehicleTypeGroupRecord) error {
		return fn(&domain.VehicleTypeGroup{GroupID: r.GroupID, Name: r.GroupName})
	})
}

// EnumerateVehicleTypes streams all vehicle types.
func (c *Client) EnumerateVehicleTypes(ctx context.Context, fn func(*domain.VehicleType) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityVehicleType], func(r vehicleTypeRecord) error {
		return fn(&domain.VehicleType{VehicleTypeID: r.VehicleTypeID, Name: r.Name, GroupID: r.GroupID})
	})
}

// EnumerateModels streams all models.
func (c *Client) EnumerateModels(ctx context.Context, fn func(*domain.Model) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityModel], func(r modelRecord) error {
		return fn(&domain.Model{ModelID: r.ModelID, Name: r.ModelName, VehicleTypeID: r.VehicleTypeID})
	})
}

// EnumerateRegions streams all regions.
func (c *Client) EnumerateRegions(ctx context.Context, fn func(*domain.Region) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityRegion], func(r regionRecord) error {
		return fn(&domain.Region{RegionID: r.RegionID, Name: r.RegionName})
	})
}

// EnumerateDriveTypes streams all drive types.
func (c *Client) EnumerateDriveTypes(ctx context.Context, fn func(*domain.DriveType) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityDriveType], func(r driveTypeRecord) error {
		return fn(&domain.DriveType{DriveTypeID: r.DriveTypeID, Name: r.Name})
	})
}

// EnumerateBodyStyleConfigs streams all body style configs.
func (c *Client) EnumerateBodyStyleConfigs(ctx context.Context, fn func(*domain.BodyStyleConfig) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityBodyStyleConfig], func(r bodyStyleConfigRecord) error {
		return fn(&domain.BodyStyleConfig{BodyStyleConfigID: r.BodyStyleConfigID, Name: r.Name})
	})
}

// EnumerateEngineConfigs streams all engine configs.
func (c *Client) EnumerateEngineConfigs(ctx context.Context, fn func(*domain.EngineConfig) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityEngineConfig], func(r engineConfigRecord) error {
		return fn(&domain.EngineConfig{EngineConfigID: r.EngineConfigID, Name: r.Name})
	})
}

// EnumerateBaseVehicles streams all base vehicles.
func (c *Client) EnumerateBaseVehicles(ctx context.Context, fn func(*domain.BaseVehicle) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityBaseVehicle], func(r baseVehicleRecord) error {
		return fn(&domain.BaseVehicle{
			BaseVehicleID: r.BaseVehicleID,
			YearID:        r.YearID,
			MakeID:        r.MakeID,
			ModelID:       r.ModelID,
		})
	})
}

// EnumerateVehicles streams all vehicles.
func (c *Client) EnumerateVehicles(ctx context.Context, fn func(*domain.Vehicle) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityVehicle], func(r vehicleRecord) error {
		return fn(&domain.Vehicle{
			VehicleID:     r.VehicleID,
			BaseVehicleID: r.BaseVehicleID,
			RegionID:      r.RegionID,
		})
	})
}

// EnumerateVehicleToDriveTypes streams the vehicle/drive-type bridge.
func (c *Client) EnumerateVehicleToDriveTypes(ctx context.Context, fn func(*domain.VehicleToDriveType) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityVehicleToDriveType], func(r vehicleToDriveTypeRecord) error {
		return fn(&domain.VehicleToDriveType{VehicleID: r.VehicleID, DriveTypeID: r.DriveTypeID})
	})
}

// EnumerateVehicleToBodyStyleConfigs streams the vehicle/body-style bridge.
func (c *Client) EnumerateVehicleToBodyStyleConfigs(ctx context.Context, fn func(*domain.VehicleToBodyStyleConfig) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityVehicleToBodyStyle], func(r vehicleToBodyStyleConfigRecord) error {
		return fn(&domain.VehicleToBodyStyleConfig{VehicleID: r.VehicleID, BodyStyleConfigID: r.BodyStyleConfigID})
	})
}

// EnumerateVehicleToEngineConfigs streams the vehicle/engine bridge.
func (c *Client) EnumerateVehicleToEngineConfigs(ctx context.Context, fn func(*domain.VehicleToEngineConfig) error) error {
	return enumerate(ctx, c, entityPaths[domain.EntityVehicleToEngine], func(r vehicleToEngineConfigRecord) error {
		return fn(&domain.VehicleToEngineConfig{VehicleID: r.VehicleID, EngineConfigID: r.EngineConfigID})
	})
}
