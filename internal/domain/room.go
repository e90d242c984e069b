package domain

type RoomName string

// Room is fan-out metadata only; membership and the sequence counter live in
// the broadcaster that owns the room.
type Room struct {
	Name RoomName
}
