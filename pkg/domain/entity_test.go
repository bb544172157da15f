package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityType_Verb(t *testing.T) {
	tests := map[EntityType]string{
		EntitySpirit:  "summoned",
		EntityDrone:   "summoned",
		EntityVehicle: "summoned",
		EntityNPC:     "called",
		EntityContact: "called",
		EntityBoss:    "added",
		"gang":        "added",
	}
	for typ, want := range tests {
		assert.Equal(t, want, typ.Verb(), string(typ))
	}
}

func TestEntityType_Restricted(t *testing.T) {
	assert.True(t, EntityBoss.Restricted())
	assert.True(t, EntitySecurity.Restricted())
	assert.True(t, EntityThreat.Restricted())
	assert.False(t, EntityNPC.Restricted())
	assert.False(t, EntityType("gang").Restricted())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("")
	assert.NoError(t, err)
	assert.Equal(t, RolePlayer, r)

	r, err = ParseRole("gm")
	assert.NoError(t, err)
	assert.Equal(t, RoleGameMaster, r)

	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, ErrValidation)
}
