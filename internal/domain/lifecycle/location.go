package lifecycle

import "strings"

const (
	LocationOnline = "Online"
	LocationOther  = "Other"
)

// LocationFilterKind describes how a city filter is matched.
type LocationFilterKind int

const (
	LocationAny LocationFilterKind = iota
	LocationCity
	LocationIsOnline
	LocationIsOther
)

// ClassifyLocationFilter interprets a location query parameter.
func ClassifyLocationFilter(filter string) LocationFilterKind {
	switch {
	case strings.TrimSpace(filter) == "" || strings.EqualFold(filter, "all"):
		return LocationAny
	case strings.EqualFold(filter, LocationOnline):
		return LocationIsOnline
	case strings.EqualFold(filter, LocationOther):
		return LocationIsOther
	}
	return LocationCity
}

// MatchesLocation evaluates a filter against a task location in memory. The
// task repository builds the equivalent SQL predicate.
func MatchesLocation(location, filter string, cities []string) bool {
	loc := strings.ToLower(location)
	switch ClassifyLocationFilter(filter) {
	case LocationAny:
		return true
	case LocationIsOnline:
		return strings.Contains(loc, "online")
	case LocationIsOther:
		if strings.Contains(loc, "online") {
			return false
		}
		for _, c := range cities {
			if strings.Contains(loc, strings.ToLower(c)) {
				return false
			}
		}
		return true
	}
	return strings.Contains(loc, strings.ToLower(strings.TrimSpace(filter)))
}
