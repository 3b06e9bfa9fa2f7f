package refclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Config holds the base URLs of the reference services
type Config struct {
	VehicleClassURL string
	DriverURL       string
	VehicleURL      string
	FareSchemeURL   string
	CorporateURL    string
	PromoCodeURL    string
	UserURL         string
	ServiceToken    string
	Timeout         time.Duration
	CacheTTL        time.Duration
}

// Cache stores raw reference payloads between lookups
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Client reads reference data from the services that own it.
// Every service exposes GET {base}/api/v1/{resource}/{id} returning either
// the object itself or the object wrapped in a "data" envelope.
type Client struct {
	cfg    Config
	client *http.Client
	cache  Cache
}

// NewClient creates a new reference client; cache may be nil
func NewClient(cfg Config, cache Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		cache:  cache,
	}
}

// GetVehicleClass looks up a vehicle class
func (c *Client) GetVehicleClass(ctx context.Context, id int64) (*VehicleClass, error) {
	r, err := c.fetch(ctx, c.cfg.VehicleClassURL, "vehicle-classes", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	return &VehicleClass{
		ID:        id,
		ClassName: str(r, "class_name", "className", "name"),
		ClassCode: str(r, "class_code", "classCode", "code"),
	}, nil
}

// GetDriver looks up a driver
func (c *Client) GetDriver(ctx context.Context, id int64) (*Driver, error) {
	r, err := c.fetch(ctx, c.cfg.DriverURL, "drivers", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	driver := &Driver{
		ID:            id,
		FirstName:     str(r, "first_name", "firstName"),
		LastName:      str(r, "last_name", "lastName"),
		ContactNumber: str(r, "contact_number", "contactNumber"),
		IsActive:      boolean(r, "is_active", "isActive"),
		IsBlocked:     boolean(r, "is_blocked", "isBlocked"),
	}

	if raw := str(r, "user_id", "userId"); raw != "" {
		if userID, err := uuid.Parse(raw); err == nil {
			driver.UserID = &userID
		}
	}

	return driver, nil
}

// GetVehicle looks up a vehicle
func (c *Client) GetVehicle(ctx context.Context, id int64) (*Vehicle, error) {
	r, err := c.fetch(ctx, c.cfg.VehicleURL, "vehicles", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	return &Vehicle{
		ID:                 id,
		RegistrationNumber: str(r, "registration_number", "registrationNumber"),
		VehicleCode:        str(r, "vehicle_code", "vehicleCode"),
	}, nil
}

// GetFareScheme looks up a fare scheme
func (c *Client) GetFareScheme(ctx context.Context, id int64) (*FareScheme, error) {
	r, err := c.fetch(ctx, c.cfg.FareSchemeURL, "fare-schemes", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	return &FareScheme{
		ID:       id,
		FareName: str(r, "fare_name", "fareName"),
		FareCode: str(r, "fare_code", "fareCode"),
	}, nil
}

// GetCorporate looks up a corporate account
func (c *Client) GetCorporate(ctx context.Context, id int64) (*Corporate, error) {
	r, err := c.fetch(ctx, c.cfg.CorporateURL, "corporates", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	return &Corporate{
		ID:   id,
		Name: str(r, "name"),
		Code: str(r, "code"),
	}, nil
}

// GetPromoCode looks up a promo code
func (c *Client) GetPromoCode(ctx context.Context, id int64) (*PromoCode, error) {
	r, err := c.fetch(ctx, c.cfg.PromoCodeURL, "promo-codes", strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	return &PromoCode{
		ID:   id,
		Code: str(r, "code"),
	}, nil
}

// GetUser looks up a user account
func (c *Client) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	r, err := c.fetch(ctx, c.cfg.UserURL, "users", id.String())
	if err != nil {
		return nil, err
	}

	return &User{
		ID:        id,
		FirstName: str(r, "first_name", "firstName"),
		LastName:  str(r, "last_name", "lastName"),
		Email:     str(r, "email"),
	}, nil
}

// fetch returns the JSON object describing resource/id, from cache when possible
func (c *Client) fetch(ctx context.Context, baseURL, resource, id string) (gjson.Result, error) {
	key := "ref:" + resource + ":" + id

	if c.cache != nil {
		if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return gjson.Parse(raw), nil
		}
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/api/v1/" + resource + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to build %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.ServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to call %s service: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read %s response: %w", resource, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return gjson.Result{}, fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return gjson.Result{}, fmt.Errorf("%s service returned status %d", resource, resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s service returned invalid JSON", resource)
	}

	result := gjson.ParseBytes(body)
	if data := result.Get("data"); data.IsObject() {
		result = data
	}
	if !result.IsObject() {
		return gjson.Result{}, fmt.Errorf("%s service returned no object", resource)
	}

	if c.cache != nil && c.cfg.CacheTTL > 0 {
		_ = c.cache.Set(ctx, key, result.Raw, c.cfg.CacheTTL)
	}

	return result, nil
}

// str returns the first non-empty string among the given paths
func str(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func boolean(r gjson.Result, paths ...string) bool {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v.Bool()
		}
	}
	return false
}
