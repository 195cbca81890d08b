package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "MODULES-E3K2L", ModuleKey("E3K2L"))
	assert.Equal(t, "STRING-E3K2L-WR2-MPPT-1.3", StringKey("E3K2L", 2, "1", 3))
	assert.Equal(t, "SIM-E3K2L", SIMKey("E3K2L"))
	assert.Equal(t, "PLANT-E3K2L", PlantKey("E3K2L"))
}

func TestMPPTFromStringKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"STRING-E3K2L-WR2-MPPT-1.3", "1"},
		{"STRING-E3K2L-WR1-MPPT-B.1", "B"},
		{"STRING-E3K2L-WR1-MPPT-2", "2"},
		{"INV-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MPPTFromStringKey(tt.key))
		})
	}
}
