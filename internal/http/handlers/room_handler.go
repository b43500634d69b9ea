// Room HTTP handlers.
//
// This file exposes:
//   - POST   /rooms                        (open or reuse a direct room)
//   - GET    /rooms                        (rooms of the caller, ETag support)
//   - GET    /rooms/{id}                   (one room)
//   - POST   /rooms/group                  (create a group)
//   - PUT    /rooms/{id}/name              (rename a group, admin only)
//   - POST   /rooms/{id}/members           (add a member, admin only)
//   - DELETE /rooms/{id}/members/{userId}  (remove a member or leave)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/domain"
)

//
// DTOs
//

// AccessRoomRequest names the other participant of a direct room.
type AccessRoomRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateGroupRequest is the JSON payload for a new group.
type CreateGroupRequest struct {
	Name    string   `json:"name"     binding:"required" example:"Weekend trip"`
	UserIDs []string `json:"user_ids" binding:"required"`
	Pic     string   `json:"pic,omitempty"`
}

// RenameRoomRequest is the JSON payload for renaming a group.
type RenameRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// AddMemberRequest names the user to add.
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ListRoomsResponse wraps the caller's rooms.
type ListRoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

//
// Handlers
//

// AccessRoom godoc
// @ID          accessRoom
// @Summary     Open a direct room
// @Description Returns the direct room shared with user_id, creating it on first use.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.AccessRoomRequest  true  "Other participant"
// @Success     200   {object}  domain.Room
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Router      /rooms [post]
func (h *Handlers) AccessRoom(c *gin.Context) {
	var req AccessRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	r, err := h.rooms.AccessDirect(c.Request.Context(), userID(c), req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List the caller's rooms
// @Description Most recently updated first, with members and latest message. Supports weak ETag via If-None-Match.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header    string  false  "ETag from a previous response"
// @Success     200            {object}  handlers.ListRoomsResponse
// @Success     304            {string}  string  "Not Modified"
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	if h.stats != nil {
		n, ts, err := h.stats.RoomsStats(ctx, uid)
		if weakETag(c, "rooms", uid, n, ts, err) {
			return
		}
	}

	rooms, err := h.rooms.List(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	ok(c, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// GetRoom godoc
// @ID          getRoom
// @Summary     Get one room
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Room ID"
// @Success     200  {object}  domain.Room
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /rooms/{id} [get]
func (h *Handlers) GetRoom(c *gin.Context) {
	r, err := h.rooms.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group room
// @Description The caller becomes admin. At least two other users are required.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateGroupRequest  true  "Group"
// @Success     201   {object}  domain.Room
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Group name taken"
// @Router      /rooms/group [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and user_ids are required")
		return
	}
	r, err := h.rooms.CreateGroup(c.Request.Context(), userID(c), req.Name, req.UserIDs, req.Pic)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// RenameRoom godoc
// @ID          renameRoom
// @Summary     Rename a group
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                      true  "Room ID"
// @Param       body  body      handlers.RenameRoomRequest  true  "New name"
// @Success     200   {object}  domain.Room
// @Failure     403   {object}  handlers.ErrorResponse  "Not the admin"
// @Failure     404   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Group name taken"
// @Router      /rooms/{id}/name [put]
func (h *Handlers) RenameRoom(c *gin.Context) {
	var req RenameRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name must be 1-255 characters")
		return
	}
	r, err := h.rooms.Rename(c.Request.Context(), userID(c), c.Param("id"), req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// AddMember godoc
// @ID          addMember
// @Summary     Add a member to a group
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                     true  "Room ID"
// @Param       body  body      handlers.AddMemberRequest  true  "User to add"
// @Success     200   {object}  domain.Room
// @Failure     403   {object}  handlers.ErrorResponse  "Not the admin"
// @Failure     409   {object}  handlers.ErrorResponse  "Already a member"
// @Router      /rooms/{id}/members [post]
func (h *Handlers) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	r, err := h.rooms.AddMember(c.Request.Context(), userID(c), c.Param("id"), req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// RemoveMember godoc
// @ID          removeMember
// @Summary     Remove a member from a group
// @Description The admin may remove anyone; members may remove themselves. Live sessions of the removed user leave the room.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id      path      string  true  "Room ID"
// @Param       userId  path      string  true  "User to remove"
// @Success     200     {object}  domain.Room
// @Failure     403     {object}  handlers.ErrorResponse
// @Failure     404     {object}  handlers.ErrorResponse
// @Router      /rooms/{id}/members/{userId} [delete]
func (h *Handlers) RemoveMember(c *gin.Context) {
	r, err := h.rooms.RemoveMember(c.Request.Context(), userID(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}
