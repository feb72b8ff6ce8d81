package domain

import (
	"fmt"
	"strconv"
)

// Identity is the stable numeric identity of a chat participant. It is
// resolved once at connection establishment and never changes during a
// session; display names live in the directory.
type Identity int64

// System is the reserved identity for relay-originated announcements. It can
// never authenticate.
const System Identity = 0

// BroadcastScope is the wire literal addressing every connected identity.
const BroadcastScope = "all"

func (i Identity) String() string {
	if i == System {
		return "system"
	}
	return strconv.FormatInt(int64(i), 10)
}

// ParseIdentity parses the wire form of an identity. The system identity and
// non-positive values are not addressable.
func ParseIdentity(s string) (Identity, error) {
	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	if value <= int64(System) {
		return 0, fmt.Errorf("invalid identity %q", s)
	}
	return Identity(value), nil
}
