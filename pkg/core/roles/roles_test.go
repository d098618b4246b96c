package roles

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

func TestResolveAll_MixedRepresentations(t *testing.T) {
	var raws []Raw
	err := json.Unmarshal([]byte(`["COORDINATOR", {"name": "voluntario"}, {}]`), &raws)
	require.NoError(t, err)

	got := ResolveAll(raws)

	assert.Equal(t, []model.Role{model.RoleCoordinator, model.RoleVolunteer}, got)
}

func TestDecode_EachKnownShape(t *testing.T) {
	tests := []struct {
		input string
		shape Shape
		role  model.Role
	}{
		{`"ADMIN"`, ShapeString, model.RoleAdmin},
		{`{"name": "coordinador"}`, ShapeName, model.RoleCoordinator},
		{`{"role": "volunteer"}`, ShapeRole, model.RoleVolunteer},
		{`{"authority": "ROLE_ADMIN"}`, ShapeAuthority, model.RoleAdmin},
		{`{"rolename": "Coordinator"}`, ShapeRoleName, model.RoleCoordinator},
		{`{"value": "voluntario"}`, ShapeValue, model.RoleVolunteer},
		{`{"code": "COORDINADOR"}`, ShapeCode, model.RoleCoordinator},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			raw := Decode([]byte(tt.input))
			assert.Equal(t, tt.shape, raw.Shape)

			role, ok := Resolve(raw)
			require.True(t, ok)
			assert.Equal(t, tt.role, role)
		})
	}
}

func TestDecode_UnknownShapes(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"id": 3}`,
		`{"name": 7}`,
		`42`,
		`null`,
		`["ADMIN"]`,
		``,
	}

	for _, in := range inputs {
		raw := Decode([]byte(in))
		assert.Equal(t, ShapeUnknown, raw.Shape, "input %q", in)
		_, ok := Resolve(raw)
		assert.False(t, ok)
	}
}

func TestDecode_NullFieldFallsThroughToNextKey(t *testing.T) {
	raw := Decode([]byte(`{"name": null, "role": "coordinator"}`))

	assert.Equal(t, ShapeRole, raw.Shape)
	role, ok := Resolve(raw)
	require.True(t, ok)
	assert.Equal(t, model.RoleCoordinator, role)
}

func TestNormalize_UnrecognizedIsDropped(t *testing.T) {
	for _, s := range []string{"", "  ", "guest", "superuser"} {
		_, ok := Normalize(s)
		assert.False(t, ok, "input %q", s)
	}
}

func TestResolveAll_Deduplicates(t *testing.T) {
	got := FromStrings([]string{"volunteer", "VOLUNTARIO", "Voluntario", "admin"})

	assert.Equal(t, []model.Role{model.RoleVolunteer, model.RoleAdmin}, got)
}

func TestResolveAll_EmptyInput(t *testing.T) {
	assert.Empty(t, ResolveAll(nil))
}
