// Profile HTTP handlers.
//
// This file exposes REST endpoints for profile resources:
//   - POST   /profiles/provision  (provisioning hook)
//   - GET    /profiles            (list, globally visible)
//   - GET    /profiles/{id}       (fetch)
//   - PATCH  /profiles/{id}       (owner-only partial update)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grovechat/grove/internal/services"
)

// ProvisionProfileRequest is the JSON payload of the provisioning hook.
type ProvisionProfileRequest struct {
	// Email of the new principal; the local-part seeds the username when no
	// explicit username is requested.
	Email string `json:"email" binding:"required" example:"alice@example.com"`
	// Username optionally overrides the derived handle.
	Username string `json:"username,omitempty" example:"alice"`
}

// UpdateProfileRequest is the JSON payload for a partial profile update.
// Absent fields are left untouched.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" example:"Alice"`
	AvatarURL   *string `json:"avatar_url,omitempty"   example:"https://cdn.example.com/a.png"`
	Status      *string `json:"status,omitempty"       example:"away"`
}

// ProvisionProfile godoc
// @ID          provisionProfile
// @Summary     Provision the caller's profile
// @Description Creates exactly one profile row for a newly created principal. Fired once by the identity provider after signup.
// @Tags        Profiles
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ProvisionProfileRequest  true  "Provision payload"
//
// @Success     201  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Write denied"
// @Failure     409  {object}  handlers.ErrorResponse  "Username taken"
// @Router      /profiles/provision [post]
func (h *Handlers) ProvisionProfile(c *gin.Context) {
	var req ProvisionProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.profileSvc.Provision(c.Request.Context(), principal(c), req.Email, req.Username)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ListProfiles godoc
// @ID          listProfiles
// @Summary     List profiles
// @Description Profiles are globally visible; no principal scoping applies.
// @Tags        Profiles
// @Produce     json
// @Success     200  {array}   domain.Profile
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /profiles [get]
func (h *Handlers) ListProfiles(c *gin.Context) {
	out, err := h.profileSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Fetch a profile
// @Tags        Profiles
// @Produce     json
// @Param       id  path  string  true  "Profile ID"
// @Success     200  {object}  domain.Profile
// @Failure     404  {object}  handlers.ErrorResponse "Profile not found"
// @Router      /profiles/{id} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profileSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the caller's profile
// @Description Partial update; only the owning principal may write. Setting status also bumps last_seen.
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Profile ID"
// @Param       body  body  handlers.UpdateProfileRequest  true  "Fields to update"
// @Success     200  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Write denied"
// @Failure     404  {object}  handlers.ErrorResponse "Profile not found"
// @Router      /profiles/{id} [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.DisplayName == nil && req.AvatarURL == nil && req.Status == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no fields to update")
		return
	}
	if req.Status != nil && strings.TrimSpace(*req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must not be blank")
		return
	}

	p, err := h.profileSvc.Update(c.Request.Context(), principal(c), c.Param("id"), patchFrom(req))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// patchFrom converts the request DTO into the service-level patch.
func patchFrom(req UpdateProfileRequest) services.ProfilePatch {
	return services.ProfilePatch{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Status:      req.Status,
	}
}
