// Package services defines the business logic for accounts, rooms, messages,
// and tasks. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Account errors.
var (
	// ErrUserExists is returned when registering or updating to an email that
	// already belongs to another account.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials covers an unknown email and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidInput is returned for missing or malformed required fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Room errors.
var (
	// ErrRoomNotFound indicates that the room does not exist or the caller
	// cannot see it.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNotMember is returned when the caller does not belong to the room.
	ErrNotMember = errors.New("not a member of this room")

	// ErrNotAdmin is returned when a group operation requires the admin.
	ErrNotAdmin = errors.New("only the group admin can do this")

	// ErrRoomExists is returned when a group name is already taken.
	ErrRoomExists = errors.New("a group with this name already exists")

	// ErrAlreadyMember is returned when adding a user who is already a member.
	ErrAlreadyMember = errors.New("user is already a member")

	// ErrGroupTooSmall is returned when a group is created with fewer than two
	// other members.
	ErrGroupTooSmall = errors.New("a group needs at least 2 other members")

	// ErrSelfChat is returned when a user tries to open a direct room with
	// themselves.
	ErrSelfChat = errors.New("cannot start a chat with yourself")
)

// Message errors.
var (
	// ErrEmptyMessage is returned when a message has neither content nor image.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when message content exceeds the configured limit.
	ErrTooLong = errors.New("message too long")
)

// Task errors.
var (
	// ErrTaskNotFound indicates that the task does not exist or belongs to
	// another user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEmptyTitle is returned when a task title is blank.
	ErrEmptyTitle = errors.New("title is empty")
)
