// Account HTTP handlers.
//
// This file exposes:
//   - POST /auth/register   (create an account, returns a token)
//   - POST /auth/login      (exchange credentials for a token)
//   - GET  /users           (search other users)
//   - GET  /users/me        (own profile)
//   - PUT  /users/me        (partial profile update)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/services"
)

//
// DTOs
//

// RegisterRequest is the JSON payload for registration.
type RegisterRequest struct {
	Name     string `json:"name"     binding:"required" example:"Ann Lee"`
	Email    string `json:"email"    binding:"required" example:"ann@example.com"`
	Password string `json:"password" binding:"required" example:"correct-Horse-battery-9"`
	// Pic is an image URL, a data URL or raw base64 image bytes.
	Pic string `json:"pic,omitempty"`
}

// LoginRequest is the JSON payload for login.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"ann@example.com"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a bearer token and the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// UserSummary is the public view of another user.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Pic   string `json:"pic"`
}

// UpdateMeRequest is a partial profile update; absent fields are unchanged.
type UpdateMeRequest struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Description *string `json:"description,omitempty"`
	PhoneNo     *string `json:"phone_no,omitempty"`
	// DOB is an RFC 3339 date or date-time.
	DOB *string `json:"dob,omitempty" example:"1990-01-02"`
	Pic *string `json:"pic,omitempty"`
}

func parseDOB(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

//
// Handlers
//

// Register godoc
// @ID          register
// @Summary     Register an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid input or weak password"
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, email and password are required")
		return
	}
	res, err := h.users.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Pic)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, AuthResponse{Token: res.Token, User: res.User})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	res, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AuthResponse{Token: res.Token, User: res.User})
}

// SearchUsers godoc
// @ID          searchUsers
// @Summary     Search users by name or email
// @Description Case-insensitive substring match. The caller is never included.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       search  query     string  false  "Search term"
// @Success     200     {array}   handlers.UserSummary
// @Router      /users [get]
func (h *Handlers) SearchUsers(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), userID(c), c.Query("search"))
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Pic: u.Pic})
	}
	ok(c, http.StatusOK, out)
}

// Me godoc
// @ID          me
// @Summary     Current user's profile
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.users.Me(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateMe godoc
// @ID          updateMe
// @Summary     Update the current user's profile
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpdateMeRequest  true  "Fields to change"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /users/me [put]
func (h *Handlers) UpdateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := services.UserUpdate{
		Name:        req.Name,
		Email:       req.Email,
		Description: req.Description,
		PhoneNo:     req.PhoneNo,
		Pic:         req.Pic,
	}
	if req.DOB != nil && *req.DOB != "" {
		dob, err := parseDOB(*req.DOB)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "dob must be YYYY-MM-DD or RFC 3339")
			return
		}
		in.DOB = &dob
	}
	u, err := h.users.Update(c.Request.Context(), userID(c), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
