package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Uplink frame layout (23 bytes): device_id uint8, battery uint8 (mV = raw*7 + 3000),
// weight uint24 little-endian, then three 6-byte BSSIDs.
const (
	Size = 23

	offsetDeviceID     = 0
	offsetBattery      = 1
	offsetWeight       = 2
	offsetAccessPoints = 5

	accessPointLen = 6

	batteryStepMillivolts = 7
	batteryBaseMillivolts = 3000
)

var (
	ErrInvalidEncoding = errors.New("frame: invalid hex encoding")
	ErrInvalidLength   = errors.New("frame: invalid length")
)

// Reading is a decoded HiveSense uplink.
type Reading struct {
	DeviceID          uint8
	BatteryMillivolts int
	WeightRaw         uint32
	AccessPoints      [3]AccessPoint
}

// BatteryVolts returns the battery voltage in volts.
func (r Reading) BatteryVolts() float64 {
	return float64(r.BatteryMillivolts) / 1000
}

// Decode parses a hex-encoded uplink frame.
func Decode(payloadHex string) (Reading, error) {
	data, err := hex.DecodeString(strings.TrimSpace(payloadHex))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return Parse(data)
}

// Parse parses a raw uplink frame. Any length other than Size is rejected.
func Parse(data []byte) (Reading, error) {
	if len(data) != Size {
		return Reading{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(data), Size)
	}

	r := Reading{
		DeviceID:          data[offsetDeviceID],
		BatteryMillivolts: int(data[offsetBattery])*batteryStepMillivolts + batteryBaseMillivolts,
		WeightRaw: uint32(data[offsetWeight]) |
			uint32(data[offsetWeight+1])<<8 |
			uint32(data[offsetWeight+2])<<16,
	}
	for i := range r.AccessPoints {
		start := offsetAccessPoints + i*accessPointLen
		copy(r.AccessPoints[i][:], data[start:start+accessPointLen])
	}
	return r, nil
}
