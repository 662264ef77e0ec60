package model

import "strings"

// Document is an arbitrary decoded JSON object from the VRM API.
type Document map[string]any

// Object returns the nested object at key, nil when absent or not an object.
func (d Document) Object(key string) Document {
	switch v := d[key].(type) {
	case map[string]any:
		return Document(v)
	case Document:
		return v
	}
	return nil
}

// Objects returns the object elements of the array at key, skipping anything else.
func (d Document) Objects(key string) []Document {
	items, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Document, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Document(m))
		}
	}
	return out
}

func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// First returns the value of the first key present.
func (d Document) First(keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok {
			return v, k, true
		}
	}
	return nil, "", false
}

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Instance reads the "instance" tag, NoInstance when absent or not an integer.
func (d Document) Instance() int {
	v, ok := d["instance"]
	if !ok {
		return NoInstance
	}
	f, err := ToFloat(v)
	if err != nil || f != float64(int(f)) || f < 0 {
		return NoInstance
	}
	return int(f)
}

// Records unwraps a {"records": ...} envelope; documents without one are returned as is.
func (d Document) Records() Document {
	if r := d.Object("records"); r != nil {
		return r
	}
	return d
}

// OverviewDevices lists devices[] of a system-overview records document.
func (d Document) OverviewDevices() []Document {
	return d.Records().Objects("devices")
}

// MatchesDevice reports whether an overview device entry is the device with the given id.
func (d Document) MatchesDevice(id string) bool {
	if id == "" {
		return false
	}
	return strings.EqualFold(d.String("machineSerialNumber"), id) || strings.EqualFold(d.String("identifier"), id)
}

// Primary returns records[0] of a device data document, the document itself
// when it has no records list.
func (d Document) Primary() Document {
	if items := d.Objects("records"); len(items) > 0 {
		return items[0]
	}
	if _, ok := d["records"].([]any); ok {
		return nil
	}
	return d
}

// Source reports which upstream document a device data document was built from.
func (d Document) Source() string {
	return d.String("source")
}

// FindDevice returns the overview device entry for id.
func (d Document) FindDevice(id string) (Document, bool) {
	for _, dev := range d.OverviewDevices() {
		if dev.MatchesDevice(id) {
			return dev, true
		}
	}
	return nil, false
}
