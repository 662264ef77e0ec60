package model

import "time"

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SwVersion    string   `json:"sw_version,omitempty"`
}

type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	ValueTemplate     string         `json:"value_template"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	Device            RegisterDevice `json:"device"`
}

// Device is used as a map key, keep it comparable.
type Device struct {
	ID           string
	Kind         DeviceKind
	Model        string
	Name         string
	SerialNumber string
}

type DeviceStatus struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Driver      string  `json:"driver"`
	Value       *string `json:"value"`
	Unit        string  `json:"unit"`
	UOM         int     `json:"uom"`
	DeviceClass string  `json:"device_class,omitempty"`
	StateClass  string  `json:"state_class,omitempty"`
	Dirty       bool    `json:"dirty"`
}

// SensorReading is one changed sensor value handed to the publishers.
type SensorReading struct {
	Device      Device    `json:"device"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Value       string    `json:"value"`
	Unit        string    `json:"unit_of_measurement"`
	DeviceClass string    `json:"device_class,omitempty"`
	StateClass  string    `json:"state_class,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (r SensorReading) IsText() bool {
	return TextSensors.HasSlug(r.Slug)
}
