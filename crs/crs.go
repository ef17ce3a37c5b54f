// Package crs resolves coordinate reference systems to their authority/code
// pair and renders them as OGC URIs and URNs.
package crs

import (
	"fmt"
	"regexp"
	"strings"

	mcerrors "github.com/mapchete/mapchete/errors"
)

var (
	crsURIRegexURL  = regexp.MustCompile("https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN  = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+)::(?P<code>[^:]+)$")
	crsAuthorityPat = regexp.MustCompile("^(?P<authority>[A-Za-z0-9_.-]+):(?P<code>[A-Za-z0-9_.-]+)$")
)

// CRS is an opaque handle on a coordinate reference system. It may carry a
// resolved authority/code pair, or only the definition string it was created
// from, in which case resolution happens lazily in ToAuthority.
type CRS struct {
	authority  string
	code       string
	definition string
}

// Well-known instances.
var (
	EPSG4326 = CRS{authority: "EPSG", code: "4326"}
	EPSG3857 = CRS{authority: "EPSG", code: "3857"}
	CRS84    = CRS{authority: "OGC", code: "CRS84"}
)

// FromAuthority builds a CRS from a known authority/code pair.
func FromAuthority(authority, code string) CRS {
	return CRS{authority: authority, code: code}
}

// FromDefinition wraps a raw definition string without resolving it.
func FromDefinition(definition string) CRS {
	return CRS{definition: definition}
}

// FromString parses "EPSG:4326", an OGC CRS URI or an OGC CRS URN.
func FromString(s string) (CRS, error) {
	parts := crsURIRegexURL.FindStringSubmatch(s)
	if parts == nil {
		parts = crsURIRegexURN.FindStringSubmatch(s)
	}
	if parts == nil {
		parts = crsAuthorityPat.FindStringSubmatch(s)
	}
	if parts == nil {
		return CRS{}, mcerrors.Configf("could not parse CRS from %q", s)
	}
	return CRS{authority: parts[1], code: parts[2], definition: s}, nil
}

func (c CRS) String() string {
	if c.authority != "" {
		return c.authority + ":" + c.code
	}
	return c.definition
}

// Equal is strict authority/code equality.
func (c CRS) Equal(other CRS) bool {
	return strings.EqualFold(c.authority, other.authority) && strings.EqualFold(c.code, other.code)
}

// Equivalent reports whether two CRS describe the same system. CRS84 and
// EPSG:4326 share the same datum with swapped axis order; for the lon/lat
// tuples used throughout this module they are interchangeable.
func (c CRS) Equivalent(other CRS) bool {
	if c.IsGeographic() && other.IsGeographic() {
		return true
	}
	return c.Equal(other)
}

// IsGeographic reports whether coordinates in this CRS are degrees lon/lat.
func (c CRS) IsGeographic() bool {
	return c.Equal(EPSG4326) || c.Equal(CRS84)
}

// IsZero reports whether the CRS carries neither a resolved pair nor a definition.
func (c CRS) IsZero() bool {
	return c.authority == "" && c.definition == ""
}

// ToAuthority resolves the CRS to an (authority, code) pair. A direct lookup
// is attempted first; on failure the CRS is re-serialized to its canonical
// string form and parsed once more.
func (c CRS) ToAuthority() (string, string, error) {
	if c.authority != "" && c.code != "" {
		return c.authority, c.code, nil
	}
	reparsed, err := FromString(c.String())
	if err == nil && reparsed.authority != "" {
		return reparsed.authority, reparsed.code, nil
	}
	return "", "", mcerrors.Configf("cannot convert CRS %q to authority", c.String())
}

// ToURI renders the CRS as an OGC CRS URI, e.g.
// http://www.opengis.net/def/crs/EPSG/0/3857.
func ToURI(c CRS, version int) (string, error) {
	authority, code, err := c.ToAuthority()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://www.opengis.net/def/crs/%s/%d/%s", authority, version, code), nil
}

// ToURN renders the CRS as an OGC CRS URN, e.g. urn:ogc:def:crs:EPSG::4326.
func ToURN(c CRS) (string, error) {
	authority, code, err := c.ToAuthority()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("urn:ogc:def:crs:%s::%s", authority, code), nil
}
