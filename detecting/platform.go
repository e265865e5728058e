package detecting

import "strings"

// Platform identifies the software running a federated server.
type Platform string

const (
	PlatformLemmy   Platform = "lemmy"
	PlatformPiefed  Platform = "piefed"
	PlatformUnknown Platform = "unknown"
)

// ClassifySoftware maps a nodeinfo software name onto the closed platform set.
// Matching is case-insensitive and exact: anything that is not one of the
// recognized names classifies as PlatformUnknown.
func ClassifySoftware(name string) Platform {
	switch strings.ToLower(name) {
	case string(PlatformLemmy):
		return PlatformLemmy
	case string(PlatformPiefed):
		return PlatformPiefed
	default:
		return PlatformUnknown
	}
}
