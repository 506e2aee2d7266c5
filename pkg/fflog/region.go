package fflog

import (
	"fmt"
	"strings"
)

// Region is a reporting region. The parser needs it to resolve
// region-specific game data, and reports carry it as a numeric code.
type Region string

const (
	RegionNA Region = "NA"
	RegionEU Region = "EU"
	RegionJP Region = "JP"
	RegionCN Region = "CN"
	RegionKR Region = "KR"
)

// regionWire maps regions to the numeric codes the report service
// expects on create-report.
var regionWire = map[Region]int{
	RegionNA: 1,
	RegionEU: 2,
	RegionJP: 3,
	RegionCN: 4,
	RegionKR: 5,
}

// ParseRegion accepts region names in any case and the legacy numeric
// codes 1..5.
func ParseRegion(s string) (Region, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NA", "1":
		return RegionNA, nil
	case "EU", "2":
		return RegionEU, nil
	case "JP", "3":
		return RegionJP, nil
	case "CN", "4":
		return RegionCN, nil
	case "KR", "5":
		return RegionKR, nil
	}
	return "", fmt.Errorf("unknown region %q (want NA, EU, JP, CN or KR)", s)
}

// Wire returns the numeric code used on the wire.
func (r Region) Wire() int {
	return regionWire[r]
}

// Visibility controls who can see a created report.
type Visibility int

const (
	VisibilityPublic   Visibility = 0
	VisibilityPrivate  Visibility = 1
	VisibilityUnlisted Visibility = 2
)

// ParseVisibility accepts the visibility names and their numeric codes.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public", "0":
		return VisibilityPublic, nil
	case "private", "1":
		return VisibilityPrivate, nil
	case "unlisted", "2":
		return VisibilityUnlisted, nil
	}
	return 0, fmt.Errorf("unknown visibility %q (want public, private or unlisted)", s)
}

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityPrivate:
		return "private"
	case VisibilityUnlisted:
		return "unlisted"
	}
	return fmt.Sprintf("visibility(%d)", int(v))
}
