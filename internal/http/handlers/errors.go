// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned in the `code` field
// of ErrorResponse. Generic codes mirror HTTP status semantics; domain codes
// name the business rule that rejected the request. Clients branch on codes,
// never on messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_admin",
//	  "message": "only the group admin can do this"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/auth"
	"github.com/tbourn/go-chat-realtime/internal/services"
	"github.com/tbourn/go-chat-realtime/internal/storage"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUserExists         = "user_exists"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeWeakPassword       = "weak_password"
	ErrCodeInvalidImage       = "invalid_image"
	ErrCodeImageTooLarge      = "image_too_large"
	ErrCodeUploadsDisabled    = "uploads_disabled"
	ErrCodeNotMember          = "not_member"
	ErrCodeNotAdmin           = "not_admin"
	ErrCodeRoomExists         = "room_exists"
	ErrCodeAlreadyMember      = "already_member"
	ErrCodeGroupTooSmall      = "group_too_small"
	ErrCodeSelfChat           = "self_chat"
	ErrCodeEmptyMessage       = "empty_message"
	ErrCodeTooLong            = "too_long"
	ErrCodeEmptyTitle         = "empty_title"
)

type errMapping struct {
	err    error
	status int
	code   string
}

// serviceErrors maps service and storage sentinels to HTTP responses.
var serviceErrors = []errMapping{
	{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrUserExists, http.StatusConflict, ErrCodeUserExists},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
	{auth.ErrWeakPassword, http.StatusBadRequest, ErrCodeWeakPassword},
	{storage.ErrInvalidImage, http.StatusBadRequest, ErrCodeInvalidImage},
	{storage.ErrImageTooLarge, http.StatusRequestEntityTooLarge, ErrCodeImageTooLarge},
	{storage.ErrUploadsDisabled, http.StatusBadRequest, ErrCodeUploadsDisabled},
	{services.ErrRoomNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrNotMember, http.StatusForbidden, ErrCodeNotMember},
	{services.ErrNotAdmin, http.StatusForbidden, ErrCodeNotAdmin},
	{services.ErrRoomExists, http.StatusConflict, ErrCodeRoomExists},
	{services.ErrAlreadyMember, http.StatusConflict, ErrCodeAlreadyMember},
	{services.ErrGroupTooSmall, http.StatusBadRequest, ErrCodeGroupTooSmall},
	{services.ErrSelfChat, http.StatusBadRequest, ErrCodeSelfChat},
	{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeEmptyMessage},
	{services.ErrTooLong, http.StatusBadRequest, ErrCodeTooLong},
	{services.ErrTaskNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrEmptyTitle, http.StatusBadRequest, ErrCodeEmptyTitle},
}

// failErr writes the envelope for a service error. Unknown errors become a
// logged 500 with a generic message.
func failErr(c *gin.Context, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, m.err.Error())
			return
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
