package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/taxi-booking-backend/pkg/refclient"
)

const (
	tukClassTag    = "TUK"
	maxClassTagLen = 10
	randomSuffix   = 4
)

var (
	classTagStrip = regexp.MustCompile(`[^A-Z0-9]`)
	tukMarkers    = []string{"TUK", "THREE", "RICKSHAW"}

	// BookingIDPattern is the grammar every generated booking id follows
	BookingIDPattern = regexp.MustCompile(`^BK-[A-Z0-9]{1,10}-\d+[A-Z0-9]{4}$`)
)

// BookingIdentifier derives class tags and builds external booking ids
type BookingIdentifier struct {
	tukVehicleClassID int64
	defaultTag        string
	now               func() time.Time
}

// NewBookingIdentifier creates an identifier with the reserved tuk class id
// and the tag used when no class information is available
func NewBookingIdentifier(tukVehicleClassID int64, defaultTag string) *BookingIdentifier {
	return &BookingIdentifier{
		tukVehicleClassID: tukVehicleClassID,
		defaultTag:        defaultTag,
		now:               time.Now,
	}
}

// Identify returns the class tag for a vehicle class. class is nil when the
// booking has no class or the lookup failed.
func (i *BookingIdentifier) Identify(vehicleClassID *int64, class *refclient.VehicleClass) string {
	if vehicleClassID != nil && *vehicleClassID == i.tukVehicleClassID {
		return tukClassTag
	}

	if class == nil {
		return i.defaultTag
	}

	name := strings.ToUpper(strings.TrimSpace(class.ClassName))
	code := strings.ToUpper(strings.TrimSpace(class.ClassCode))

	// Reference data sometimes moves the tuk class to a new id
	combined := name + " " + code
	for _, marker := range tukMarkers {
		if strings.Contains(combined, marker) {
			return tukClassTag
		}
	}

	tag := code
	if tag == "" {
		tag = name
	}
	tag = classTagStrip.ReplaceAllString(tag, "")
	if len(tag) > maxClassTagLen {
		tag = tag[:maxClassTagLen]
	}
	if tag == "" {
		return i.defaultTag
	}

	return tag
}

// GenerateBookingID builds BK-<tag>-<epoch millis><4 random chars>.
// Uniqueness is enforced by storage.
func (i *BookingIdentifier) GenerateBookingID(classTag string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:randomSuffix]
	return fmt.Sprintf("BK-%s-%d%s", classTag, i.now().UnixMilli(), suffix)
}
