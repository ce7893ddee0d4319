package domain

import "unicode/utf8"

const (
	DefaultRoom  RoomID = "main"
	MaxRoomIDLen        = 36
)

type RoomID string

type Room struct {
	ID RoomID
}

// NormalizeRoomID maps an empty name onto DefaultRoom and clips long ones.
func NormalizeRoomID(raw string) RoomID {
	if raw == "" {
		return DefaultRoom
	}
	if len(raw) > MaxRoomIDLen {
		n := MaxRoomIDLen
		for n > 0 && !utf8.RuneStart(raw[n]) {
			n--
		}
		raw = raw[:n]
	}
	return RoomID(raw)
}
