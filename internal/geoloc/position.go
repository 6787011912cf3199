package geoloc

// NetworkHintAccuracy is the accuracy, in meters, reported for positions taken from the
// LoRa network location hint.
const NetworkHintAccuracy = 2000.0

// Position is a resolved geographic position.
type Position struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy"`
}

// Hint is the coarse location supplied by the LoRa network with the uplink.
type Hint struct {
	Lat float64
	Lon float64
}

// Source tells where a Resolution came from.
type Source int

const (
	SourceUnavailable Source = iota
	SourceService
	SourceNetworkHint
)

func (s Source) String() string {
	switch s {
	case SourceService:
		return "service"
	case SourceNetworkHint:
		return "network_hint"
	default:
		return "unavailable"
	}
}

// Resolution is the outcome of a position lookup. Position is only meaningful when OK.
type Resolution struct {
	Source   Source
	Position Position
}

func (r Resolution) OK() bool {
	return r.Source != SourceUnavailable
}
