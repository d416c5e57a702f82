package protocol

import (
	"fmt"
	"strconv"
)

// MessageType is the numeric code in the type[1] field of a frame.
type MessageType uint8

const (
	TypeTversion MessageType = 100 + iota
	TypeRversion
	TypeTauth
	TypeRauth
	TypeTattach
	TypeRattach
	TypeTerror // illegal, never sent
	TypeRerror
	TypeTflush
	TypeRflush
	TypeTwalk
	TypeRwalk
	TypeTopen
	TypeRopen
	TypeTcreate
	TypeRcreate
	TypeTread
	TypeRread
	TypeTwrite
	TypeRwrite
	TypeTclunk
	TypeRclunk
	TypeTremove
	TypeRremove
	TypeTstat
	TypeRstat
	TypeTwstat
	TypeRwstat
)

var typeNames = map[MessageType]string{
	TypeTversion: "Tversion",
	TypeRversion: "Rversion",
	TypeTauth:    "Tauth",
	TypeRauth:    "Rauth",
	TypeTattach:  "Tattach",
	TypeRattach:  "Rattach",
	TypeTerror:   "Terror",
	TypeRerror:   "Rerror",
	TypeTflush:   "Tflush",
	TypeRflush:   "Rflush",
	TypeTwalk:    "Twalk",
	TypeRwalk:    "Rwalk",
	TypeTopen:    "Topen",
	TypeRopen:    "Ropen",
	TypeTcreate:  "Tcreate",
	TypeRcreate:  "Rcreate",
	TypeTread:    "Tread",
	TypeRread:    "Rread",
	TypeTwrite:   "Twrite",
	TypeRwrite:   "Rwrite",
	TypeTclunk:   "Tclunk",
	TypeRclunk:   "Rclunk",
	TypeTremove:  "Tremove",
	TypeRremove:  "Rremove",
	TypeTstat:    "Tstat",
	TypeRstat:    "Rstat",
	TypeTwstat:   "Twstat",
	TypeRwstat:   "Rwstat",
}

var typeCodes = make(map[string]MessageType, len(typeNames))

func init() {
	for code, name := range typeNames {
		typeCodes[name] = code
	}
}

// Registered reports whether t has a symbolic name.
func (t MessageType) Registered() bool {
	_, ok := typeNames[t]
	return ok
}

// String returns the symbolic name of t, or its decimal code when t is
// not registered.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return strconv.Itoa(int(t))
}

// IsVersion reports whether t is either half of the version exchange.
func (t MessageType) IsVersion() bool {
	return t == TypeTversion || t == TypeRversion
}

// ParseType resolves a symbolic name ("Rread") or a decimal code ("117",
// "42") to a MessageType. Decimal codes pass through whether registered or
// not.
func ParseType(s string) (MessageType, error) {
	if code, ok := typeCodes[s]; ok {
		return code, nil
	}

	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownType)
	}

	return MessageType(n), nil
}
