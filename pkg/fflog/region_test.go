package fflog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegionAcceptsNamesAndCodes(t *testing.T) {
	tests := []struct {
		in   string
		want Region
	}{
		{"NA", RegionNA},
		{"na", RegionNA},
		{" eu ", RegionEU},
		{"Jp", RegionJP},
		{"CN", RegionCN},
		{"kr", RegionKR},
		{"1", RegionNA},
		{"2", RegionEU},
		{"3", RegionJP},
		{"4", RegionCN},
		{"5", RegionKR},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRegion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRegionRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "OCE", "6", "0", "north america"} {
		_, err := ParseRegion(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestRegionWireCodes(t *testing.T) {
	tests := []struct {
		region Region
		want   int
	}{
		{RegionNA, 1},
		{RegionEU, 2},
		{RegionJP, 3},
		{RegionCN, 4},
		{RegionKR, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.region.Wire(), "region %s", tt.region)
	}
}

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		in   string
		want Visibility
	}{
		{"public", VisibilityPublic},
		{"Public", VisibilityPublic},
		{"0", VisibilityPublic},
		{"private", VisibilityPrivate},
		{"1", VisibilityPrivate},
		{"unlisted", VisibilityUnlisted},
		{"2", VisibilityUnlisted},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVisibility(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseVisibility("friends")
	assert.Error(t, err)
}

func TestVisibilityString(t *testing.T) {
	assert.Equal(t, "public", VisibilityPublic.String())
	assert.Equal(t, "private", VisibilityPrivate.String())
	assert.Equal(t, "unlisted", VisibilityUnlisted.String())
	assert.Equal(t, "visibility(9)", Visibility(9).String())
}
