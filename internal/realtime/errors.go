package realtime

import "errors"

var (
	// ErrNotIdentified: a room-scoped event arrived before a valid setup.
	ErrNotIdentified = errors.New("session not identified")
	// ErrAlreadyIdentified: setup repeated with a different user id.
	ErrAlreadyIdentified = errors.New("session already identified")
	// ErrInvalidIdentity: setup without a usable user id, or one that does
	// not match the authenticated principal.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrNotMember: the user does not belong to the room (durably), or the
	// session has not joined it (live).
	ErrNotMember = errors.New("not a member of room")
	// ErrSessionClosed: the session has disconnected.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownEvent: the frame named an event this server does not handle.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedFrame: the frame was not valid JSON of the expected shape.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMissingRoom: a room-scoped event carried no room id.
	ErrMissingRoom = errors.New("missing room id")
	// ErrUnknownMessage: new message referenced a record that is not committed
	// in the given room.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrRateLimited: the session exceeded its inbound event budget.
	ErrRateLimited = errors.New("rate limited")
)
