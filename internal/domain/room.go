package domain

// RoomID is an opaque room key. It is taken from the request path as-is;
// no validation is performed, an empty key is a valid (if odd) room.
type RoomID string

type Room struct {
	ID RoomID
}
