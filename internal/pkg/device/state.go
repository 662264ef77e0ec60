package device

import (
	"maps"

	"github.com/goccy/go-json"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

// Update is a partial set of field values produced by one resolution pass.
type Update map[model.Field]any

func (u Update) Has(f model.Field) bool {
	_, ok := u[f]
	return ok
}

// State is an immutable snapshot of a device's canonical fields. Every field of
// the kind's schema is always present; Merge returns a new snapshot.
type State struct {
	kind   model.DeviceKind
	values map[model.Field]any
}

// NewState returns a snapshot holding the schema defaults for kind.
func NewState(kind model.DeviceKind) State {
	schema := model.Schemas[kind]
	values := make(map[model.Field]any, len(schema))
	for _, spec := range schema {
		values[spec.Field] = spec.Default
	}
	return State{kind: kind, values: values}
}

func (s State) Kind() model.DeviceKind {
	return s.kind
}

func (s State) Value(f model.Field) (any, bool) {
	v, ok := s.values[f]
	return v, ok
}

func (s State) Float(f model.Field) float64 {
	v, _ := model.ToFloat(s.values[f])
	return v
}

func (s State) Int(f model.Field) int64 {
	v, _ := model.ToInt(s.values[f])
	return v
}

func (s State) Text(f model.Field) string {
	v, _ := model.ToText(s.values[f])
	return v
}

// Values returns a copy of every field value.
func (s State) Values() map[model.Field]any {
	return maps.Clone(s.values)
}

// Merge overlays u on the snapshot. Fields outside the kind's schema and
// values that do not convert to the field's type are ignored.
func (s State) Merge(u Update) State {
	if len(u) == 0 {
		return s
	}
	next := State{kind: s.kind, values: maps.Clone(s.values)}
	if next.values == nil {
		next.values = map[model.Field]any{}
	}
	for f, raw := range u {
		spec, ok := model.Spec(s.kind, f)
		if !ok {
			continue
		}
		v, err := spec.Convert(raw)
		if err != nil {
			continue
		}
		next.values[f] = v
	}
	return next
}

func (s State) Equal(o State) bool {
	return s.kind == o.kind && maps.Equal(s.values, o.values)
}

type snapshot struct {
	Kind   model.DeviceKind `json:"kind"`
	Values map[string]any   `json:"values"`
}

func (s State) MarshalJSON() ([]byte, error) {
	values := make(map[string]any, len(s.values))
	for f, v := range s.values {
		values[f.String()] = v
	}
	return json.Marshal(snapshot{Kind: s.kind, Values: values})
}

// UnmarshalJSON restores a stored snapshot on top of the schema defaults.
func (s *State) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	u := make(Update, len(snap.Values))
	for k, v := range snap.Values {
		u[model.Field(k)] = v
	}
	*s = NewState(snap.Kind).Merge(u)
	return nil
}
