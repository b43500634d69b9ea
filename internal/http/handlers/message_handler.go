// Message HTTP handlers.
//
// This file exposes REST endpoints for room messages:
//   - POST /rooms/{id}/messages   (store a message, then broadcast it live)
//   - GET  /rooms/{id}/messages   (paginated history, oldest first)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a message was already
// stored for (user, room, key), the stored message is returned with
// `Idempotency-Replayed: true` and nothing is broadcast again.
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/http/middleware"
	"github.com/tbourn/go-chat-realtime/internal/services"
	"github.com/tbourn/go-chat-realtime/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message. At least
// one of Content and Image is required.
type PostMessageRequest struct {
	Content string `json:"content" example:"see you at 8"`
	// Image is an image URL, a data URL or raw base64 image bytes.
	Image string `json:"image,omitempty"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses runs of blank lines and
// trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Stores the message and broadcasts it to every live session in the room, the sender included.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                       false  "Idempotency key for safe retries"
// @Param       id               path      string                       true   "Room ID"
// @Param       body             body      handlers.PostMessageRequest  true   "Message"
// @Success     201              {object}  domain.Message               "Stored message"
// @Success     200              {object}  domain.Message               "Replayed message"
// @Failure     400              {object}  handlers.ErrorResponse       "Empty or too long"
// @Failure     403              {object}  handlers.ErrorResponse       "Not a member"
// @Failure     404              {object}  handlers.ErrorResponse       "Room not found"
// @Router      /rooms/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	m, replayed, err := h.msgs.Send(c.Request.Context(), services.SendInput{
		UserID:         userID(c),
		RoomID:         c.Param("id"),
		Content:        sanitizeContent(req.Content),
		Image:          strings.TrimSpace(req.Image),
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, m)
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a room
// @Description Returns a page of messages ordered oldest first. Supports weak ETag via If-None-Match.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path      string  true   "Room ID"
// @Param       page       query     int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200        {object}  handlers.ListMessagesResponse
// @Success     304        {string}  string  "Not Modified"
// @Failure     403        {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404        {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")
	uid := userID(c)

	if h.stats != nil {
		// Only members may learn the validator.
		if member, err := h.rooms.IsMember(ctx, roomID, uid); err == nil && member {
			n, ts, err := h.stats.MessagesStats(ctx, roomID)
			if weakETag(c, "messages", roomID, n, ts, err) {
				return
			}
		}
	}

	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))
	items, total, err := h.msgs.ListPage(ctx, uid, roomID, page, pageSize)
	if err != nil {
		c.Header("ETag", "")
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Message{}
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
