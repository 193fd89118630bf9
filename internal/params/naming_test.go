package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCamelize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"write_interval", "writeInterval"},
		{"num_steps", "numSteps"},
		{"user_param01", "userParam01"},
		{"scalar01", "scalar01"},
		{"dt", "dt"},
		{"_enabled", "_enabled"},
		{"Target_CFL", "targetCfl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Camelize(tt.in), tt.in)
	}
}

func TestUnderscore(t *testing.T) {
	tests := []struct{ in, want string }{
		{"writeInterval", "write_interval"},
		{"userParam01", "user_param01"},
		{"targetCFL", "target_cfl"},
		{"HTTPServer", "http_server"},
		{"residual-tol", "residual_tol"},
		{"dt", "dt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Underscore(tt.in), tt.in)
	}
}

func TestChildAndOptionNames(t *testing.T) {
	assert.Equal(t, "runpar", childName("_RUNPAR"))
	assert.Equal(t, "general", childName("GENERAL"))
	assert.Equal(t, "write_interval", optionName("writeInterval"))
}
