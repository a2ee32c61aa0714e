package utils

// Reverse returns a reversed copy of s. BLE stacks keep addresses and UUIDs little endian, while
// humans (and MQTT topics) read them big endian.
func Reverse[S ~[]E, E any](s S) S {
  out := make(S, len(s))

  for i, v := range s {
    out[len(s)-1-i] = v
  }

  return out
}
