package model

import "time"

// Property is the latest stored value of one sensor.
type Property struct {
	Identifier string    `json:"identifier"`
	Slug       string    `json:"slug"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit_of_measurement"`
	UpdatedAt  time.Time `json:"updated_at"`
}
type Properties []Property
