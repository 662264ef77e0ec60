package model

import "strings"

// DeviceIdentity is assigned once at discovery. Instance is NoInstance when
// the overview carried no instance tag.
type DeviceIdentity struct {
	Kind        DeviceKind `json:"kind"`
	Instance    int        `json:"instance"`
	Serial      string     `json:"serial"`
	Identifier  string     `json:"identifier"`
	Name        string     `json:"name"`
	ProductName string     `json:"product_name"`
	ProductCode string     `json:"product_code"`
}

func (d DeviceIdentity) HasInstance() bool {
	return d.Instance != NoInstance
}

// Address is the stable lower-case key a device is tracked under.
func (d DeviceIdentity) Address() string {
	if d.Serial != "" {
		return strings.ToLower(d.Serial)
	}
	return strings.ToLower(d.Identifier)
}

// WithInstance returns a copy carrying the given instance.
func (d DeviceIdentity) WithInstance(instance int) DeviceIdentity {
	d.Instance = instance
	return d
}

func (d DeviceIdentity) Device() Device {
	return Device{
		ID:           d.Address(),
		Kind:         d.Kind,
		Model:        d.ProductName,
		Name:         d.Name,
		SerialNumber: d.Serial,
	}
}
