package crs

import (
	"testing"

	"github.com/stretchr/testify/require"

	mcerrors "github.com/mapchete/mapchete/errors"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		input     string
		authority string
		code      string
		wantErr   bool
	}{
		{input: "EPSG:4326", authority: "EPSG", code: "4326"},
		{input: "http://www.opengis.net/def/crs/EPSG/0/3857", authority: "EPSG", code: "3857"},
		{input: "http://www.opengis.net/def/crs/OGC/1.3/CRS84", authority: "OGC", code: "CRS84"},
		{input: "urn:ogc:def:crs:EPSG::28992", authority: "EPSG", code: "28992"},
		{input: "not a crs at all", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := FromString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, mcerrors.IsConfig(err))
				return
			}
			require.NoError(t, err)
			authority, code, err := got.ToAuthority()
			require.NoError(t, err)
			require.Equal(t, tt.authority, authority)
			require.Equal(t, tt.code, code)
		})
	}
}

func TestToAuthorityStringRoundTrip(t *testing.T) {
	// a definition-only CRS whose string form is parseable resolves on retry
	c := FromDefinition("EPSG:32630")
	authority, code, err := c.ToAuthority()
	require.NoError(t, err)
	require.Equal(t, "EPSG", authority)
	require.Equal(t, "32630", code)

	_, _, err = FromDefinition("GEOGCS[something]").ToAuthority()
	require.Error(t, err)
	require.True(t, mcerrors.IsConfig(err))
	require.ErrorContains(t, err, "cannot convert CRS")
}

func TestToURIAndURN(t *testing.T) {
	uri, err := ToURI(EPSG3857, 0)
	require.NoError(t, err)
	require.Equal(t, "http://www.opengis.net/def/crs/EPSG/0/3857", uri)

	urn, err := ToURN(FromAuthority("EPSG", "32630"))
	require.NoError(t, err)
	require.Equal(t, "urn:ogc:def:crs:EPSG::32630", urn)
}

func TestEquivalent(t *testing.T) {
	require.True(t, EPSG4326.Equivalent(CRS84))
	require.True(t, CRS84.Equivalent(EPSG4326))
	require.False(t, EPSG4326.Equal(CRS84))
	require.False(t, EPSG3857.Equivalent(EPSG4326))
	require.True(t, EPSG3857.Equivalent(FromAuthority("epsg", "3857")))
}
