package pvvx

import "bytes"

// Environmental Sensing service (0x181A), big endian.
var marker = []byte{0x18, 0x1a}

// IsSensorFrame reports whether a service data identifier marks a sensor frame. The identifier
// must be in canonical (big endian) order and may be a 16, 32 or 128 bit UUID: the marker can
// appear at any offset.
func IsSensorFrame(uuid []byte) bool {
  return bytes.Contains(uuid, marker)
}
