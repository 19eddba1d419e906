package formatting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"passthru/internal/changelog"
)

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"map keys sorted", map[string]interface{}{"driver": "vfio-pci", "bdf": "0000:01:00.0"}, "{\n  \"bdf\": \"0000:01:00.0\",\n  \"driver\": \"vfio-pci\"\n}"},
		{"list", []string{"iommu=pt", "quiet"}, "[\n  \"iommu=pt\",\n  \"quiet\"\n]"},
		{"tagged struct", changelog.DriverUnbound{DeviceBDF: "0000:01:00.0"}, "{\n  \"device_bdf\": \"0000:01:00.0\"\n}"},
		{"nil", nil, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrettyJSON(tt.input))
		})
	}
}

func TestPrettyJSON_FallsBackOnMarshalError(t *testing.T) {
	out := PrettyJSON(make(chan int))
	assert.NotEmpty(t, out)
	assert.Contains(t, out, "0x", "falls back to the %v rendering")
}
