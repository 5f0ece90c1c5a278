package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/users"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context(), principal(c).User, c.Query("search"))
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]userResponse, 0, len(list))
	for _, u := range list {
		items = append(items, toUserResponse(u))
	}
	ok(c, http.StatusOK, gin.H{"users": items})
}

func (h HandlerSet) UserStats(c *gin.Context) {
	stats, err := h.users.Stats(c.Request.Context(), principal(c).User)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}

func (h HandlerSet) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), principal(c).User, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": toUserResponse(user)})
}

type createUserRequest struct {
	Username        string   `json:"username" binding:"required"`
	Email           string   `json:"email"`
	Password        string   `json:"password" binding:"required"`
	Role            string   `json:"role"`
	Status          string   `json:"status"`
	RelatedProjects []string `json:"relatedProjects"`
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	user, err := h.users.Create(c.Request.Context(), principal(c).User, users.CreateInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		Role:            models.UserRole(req.Role),
		Status:          models.UserStatus(req.Status),
		RelatedProjects: req.RelatedProjects,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"user": toUserResponse(user)})
}

type updateUserRequest struct {
	Username        *string            `json:"username"`
	Email           *string            `json:"email"`
	RelatedProjects *[]string          `json:"relatedProjects"`
	Role            *models.UserRole   `json:"role"`
	Status          *models.UserStatus `json:"status"`
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.users.Update(c.Request.Context(), principal(c).User, c.Param("id"), users.UpdateInput{
		Username:        req.Username,
		Email:           req.Email,
		RelatedProjects: req.RelatedProjects,
		Role:            req.Role,
		Status:          req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": toUserResponse(user)})
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password is required")
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), principal(c).User, c.Param("id"), req.Password); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}
