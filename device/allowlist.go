package device

// AllowList restricts forwarding to a set of addresses. A nil AllowList allows every address.
type AllowList map[string]struct{}

func NewAllowList(devices []*Device) AllowList {
  if len(devices) == 0 {
    return nil
  }

  l := make(AllowList, len(devices))

  for _, d := range devices {
    l[d.MAC()] = struct{}{}
  }

  return l
}

// IsAllowed does an exact match: mac must use the canonical lowercase colon rendering.
func (l AllowList) IsAllowed(mac string) bool {
  if l == nil {
    return true
  }

  _, ok := l[mac]
  return ok
}

func (l AllowList) Len() int {
  return len(l)
}
