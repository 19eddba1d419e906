package kparams

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passthru/internal/errdefs"
)

func TestKey(t *testing.T) {
	tests := []struct {
		param string
		want  string
	}{
		{"quiet", "quiet"},
		{"iommu=pt", "iommu"},
		{"vfio-pci.ids=10de:1b80,10de:10f0", "vfio-pci.ids"},
		{"a=b=c", "a"},
		{"=x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.param))
		})
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name        string
		current     []string
		requested   []string
		want        string
		wantChanged bool
		wantRemoved []string
	}{
		{
			name:        "insert into empty set",
			requested:   []string{"iommu=pt"},
			want:        "iommu=pt",
			wantChanged: true,
		},
		{
			name:        "sorted output",
			current:     []string{"quiet", "splash"},
			requested:   []string{"iommu=on", "amd_iommu=on"},
			want:        "amd_iommu=on iommu=on quiet splash",
			wantChanged: true,
		},
		{
			name:        "replace value for same key",
			current:     []string{"iommu=on", "quiet"},
			requested:   []string{"iommu=pt"},
			want:        "iommu=pt quiet",
			wantChanged: true,
			wantRemoved: []string{"iommu=on"},
		},
		{
			name:        "bare key replaced by key=value",
			current:     []string{"nomodeset"},
			requested:   []string{"nomodeset=1"},
			want:        "nomodeset=1",
			wantChanged: true,
			wantRemoved: []string{"nomodeset"},
		},
		{
			name:      "exact token already present",
			current:   []string{"iommu=pt", "quiet"},
			requested: []string{"iommu=pt"},
			want:      "iommu=pt quiet",
		},
		{
			name:        "duplicate keys collapse",
			current:     []string{"iommu=on", "iommu=pt"},
			requested:   []string{"iommu=pt"},
			want:        "iommu=pt",
			wantChanged: true,
			wantRemoved: []string{"iommu=on", "iommu=pt"},
		},
		{
			name:      "empty request",
			current:   []string{"quiet"},
			requested: nil,
			want:      "quiet",
		},
		{
			name:        "last duplicate in request wins",
			requested:   []string{"iommu=on", "iommu=pt"},
			want:        "iommu=pt",
			wantChanged: true,
			wantRemoved: []string{"iommu=on"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := Add(tt.current, tt.requested)
			assert.Equal(t, tt.want, diff.String())
			assert.Equal(t, tt.wantChanged, diff.Changed)
			assert.Equal(t, tt.wantRemoved, diff.Removed)
		})
	}
}

func TestAdd_Idempotent(t *testing.T) {
	requested := []string{"amd_iommu=on", "iommu=pt", "vfio-pci.ids=10de:1b80"}
	first := Add([]string{"quiet", "iommu=on"}, requested)
	require.True(t, first.Changed)

	second := Add(first.Params, requested)
	assert.False(t, second.Changed)
	assert.Equal(t, first.String(), second.String())
}

func TestAdd_KeyUniqueness(t *testing.T) {
	diff := Add(
		[]string{"a=1", "a=2", "b", "c=3"},
		[]string{"a=9", "b=1", "c=3"},
	)

	keys := make(map[string]int)
	for _, p := range diff.Params {
		keys[Key(p)]++
	}
	for k, n := range keys {
		assert.Equal(t, 1, n, "key %s appears %d times", k, n)
	}
	assert.Equal(t, "a=9 b=1 c=3", diff.String())
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name        string
		current     []string
		requested   []string
		want        string
		wantChanged bool
	}{
		{
			name:        "exact match",
			current:     []string{"amd_iommu=on", "iommu=on", "quiet", "splash"},
			requested:   []string{"quiet"},
			want:        "amd_iommu=on iommu=on splash",
			wantChanged: true,
		},
		{
			name:        "key match removes any value",
			current:     []string{"iommu=pt", "quiet"},
			requested:   []string{"iommu"},
			want:        "quiet",
			wantChanged: true,
		},
		{
			name:        "key=value request removes siblings",
			current:     []string{"iommu=pt", "quiet"},
			requested:   []string{"iommu=on"},
			want:        "quiet",
			wantChanged: true,
		},
		{
			name:      "absent parameter",
			current:   []string{"quiet"},
			requested: []string{"splash"},
			want:      "quiet",
		},
		{
			name:    "empty request",
			current: []string{"quiet"},
			want:    "quiet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := Remove(tt.current, tt.requested)
			assert.Equal(t, tt.want, diff.String())
			assert.Equal(t, tt.wantChanged, diff.Changed)
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"quiet splash", []string{"quiet", "splash"}},
		{"  quiet\t splash  ", []string{"quiet", "splash"}},
		{`dyndbg="file x +p" quiet`, []string{`dyndbg="file x +p"`, "quiet"}},
		{`a='b c'`, []string{`a='b c'`}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Split(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_Unterminated(t *testing.T) {
	_, err := Split(`quiet dyndbg="file x`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidData))
}

func TestIOMMUParameters(t *testing.T) {
	amd, err := IOMMUParameters(VendorAMD)
	require.NoError(t, err)
	assert.Equal(t, []string{"amd_iommu=on", "iommu=pt"}, amd)

	intel, err := IOMMUParameters(VendorIntel)
	require.NoError(t, err)
	assert.Equal(t, []string{"intel_iommu=on", "iommu=pt"}, intel)

	_, err = IOMMUParameters("Unknown")
	assert.True(t, errors.Is(err, errdefs.ErrNotSupported))
}

func TestVFIOIDs(t *testing.T) {
	got, err := VFIOIDs([]string{"10DE:1B80", "10de:10f0", "10de:1b80"})
	require.NoError(t, err)
	assert.Equal(t, "vfio-pci.ids=10de:10f0,10de:1b80", got)

	for _, bad := range [][]string{nil, {"10de"}, {"10de:zzzz"}, {"10de:1b800"}} {
		_, err := VFIOIDs(bad)
		assert.True(t, errors.Is(err, errdefs.ErrInvalidData), strings.Join(bad, ","))
	}
}
