// Package events carries dispatch traffic over Kafka: outbound notifications,
// ride events and driver positions, and inbound driver location reports.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Source is the CloudEvents source stamped on everything this service emits.
const Source = "service-dispatch"

// Topic names.
const (
	TopicNotifications   = "notification.requests"
	TopicRideEvents      = "ride.events"
	TopicDriverLocations = "driver.locations"
	TopicLocationReports = "driver.location.reports"
)

// Event types.
const (
	NotificationRequested  = "dispatch.notification.requested"
	DriverLocationUpdated  = "dispatch.driver.location_updated"
	DriverLocationReported = "driver.location.reported"

	rideEventPrefix = "dispatch."
)

// LocationReportedEvent is published by driver apps that stream positions
// through the bus instead of the HTTP API.
type LocationReportedEvent struct {
	DriverID   uuid.UUID `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReportedAt time.Time `json:"reported_at"`
}
