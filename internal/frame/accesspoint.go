package frame

// AccessPoint is the hardware address (BSSID) of a Wi-Fi access point seen by the sensor.
type AccessPoint [6]byte

// IsZero reports whether a is the all-zero address the firmware sends when no access point was found.
func (a AccessPoint) IsZero() bool {
	return a == AccessPoint{}
}

// String renders a as lowercase colon-separated hex, e.g. "aa:bb:cc:dd:ee:ff".
func (a AccessPoint) String() string {
	const hexd = "0123456789abcdef"
	out := make([]byte, 0, len(a)*3-1)
	for i, b := range a {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexd[b>>4], hexd[b&0x0F])
	}
	return string(out)
}
