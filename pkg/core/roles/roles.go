// Package roles turns the role representations the backend has used over
// time into canonical model.Role values.
package roles

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// Shape identifies which upstream representation a raw role arrived in
type Shape int

const (
	ShapeUnknown   Shape = iota
	ShapeString          // "COORDINADOR"
	ShapeName            // {"name": "..."}
	ShapeRole            // {"role": "..."}
	ShapeAuthority       // {"authority": "..."}
	ShapeRoleName        // {"rolename": "..."}
	ShapeValue           // {"value": "..."}
	ShapeCode            // {"code": "..."}
)

// objectKeys lists the object fields that may carry the role, in lookup order
var objectKeys = []struct {
	key   string
	shape Shape
}{
	{"name", ShapeName},
	{"role", ShapeRole},
	{"authority", ShapeAuthority},
	{"rolename", ShapeRoleName},
	{"value", ShapeValue},
	{"code", ShapeCode},
}

var aliases = map[string]model.Role{
	"VOLUNTARIO":  model.RoleVolunteer,
	"VOLUNTEER":   model.RoleVolunteer,
	"COORDINADOR": model.RoleCoordinator,
	"COORDINATOR": model.RoleCoordinator,
	"ADMIN":       model.RoleAdmin,
}

// Raw is one element of a roles list as received on the wire
type Raw struct {
	Shape Shape
	Text  string
}

// UnmarshalJSON never fails: anything that is not a recognised shape
// becomes ShapeUnknown and is dropped by Resolve.
func (r *Raw) UnmarshalJSON(data []byte) error {
	*r = Decode(data)
	return nil
}

// Decode classifies a single JSON value
func Decode(data []byte) Raw {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Raw{Shape: ShapeUnknown}
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Raw{Shape: ShapeUnknown}
		}
		return Raw{Shape: ShapeString, Text: s}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return Raw{Shape: ShapeUnknown}
		}
		for _, k := range objectKeys {
			v, ok := fields[k.key]
			if !ok || string(bytes.TrimSpace(v)) == "null" {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return Raw{Shape: ShapeUnknown}
			}
			return Raw{Shape: k.shape, Text: s}
		}
	}

	return Raw{Shape: ShapeUnknown}
}

// Normalize maps a role name to its canonical role. Legacy English names and
// a Spring-style "ROLE_" prefix are accepted; anything else is unrecognized.
func Normalize(s string) (model.Role, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "ROLE_")
	role, ok := aliases[key]
	return role, ok
}

// Resolve returns the canonical role carried by r
func Resolve(r Raw) (model.Role, bool) {
	if r.Shape == ShapeUnknown {
		return "", false
	}
	return Normalize(r.Text)
}

// ResolveAll resolves a roles list, dropping unrecognized entries and
// duplicates while keeping first-seen order.
func ResolveAll(raws []Raw) []model.Role {
	result := make([]model.Role, 0, len(raws))
	seen := make(map[model.Role]bool, len(raws))
	for _, raw := range raws {
		role, ok := Resolve(raw)
		if !ok || seen[role] {
			continue
		}
		seen[role] = true
		result = append(result, role)
	}
	return result
}

// FromStrings resolves a list of plain role names
func FromStrings(names []string) []model.Role {
	raws := make([]Raw, len(names))
	for i, n := range names {
		raws[i] = Raw{Shape: ShapeString, Text: n}
	}
	return ResolveAll(raws)
}
