package refclient

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the owning service has no record for the id
var ErrNotFound = errors.New("reference not found")

// VehicleClass is the display data of a vehicle class
type VehicleClass struct {
	ID        int64
	ClassName string
	ClassCode string
}

// Driver is the dispatch-relevant data of a driver
type Driver struct {
	ID            int64
	FirstName     string
	LastName      string
	ContactNumber string
	IsActive      bool
	IsBlocked     bool
	UserID        *uuid.UUID
}

// FullName joins first and last name
func (d *Driver) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// Vehicle is the display data of a vehicle
type Vehicle struct {
	ID                 int64
	RegistrationNumber string
	VehicleCode        string
}

// FareScheme is the display data of a fare scheme
type FareScheme struct {
	ID       int64
	FareName string
	FareCode string
}

// Corporate is the display data of a corporate account
type Corporate struct {
	ID   int64
	Name string
	Code string
}

// PromoCode is the display data of a promo code
type PromoCode struct {
	ID   int64
	Code string
}

// User is a platform user account
type User struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
