package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sendaka/sendaka/internal/access"
)

// Handler provides HTTP endpoints for key management. Issuance and revocation
// are wired behind access.Require(access.GroupSeniorAdmin) by the server.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

// RegisterAdminRoutes sets up the senior-admin key management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/keys", h.IssueKey)
	r.GET("/keys", h.ListKeys)
	r.DELETE("/keys/:id", h.RevokeKey)
}

// IssueKey handles POST /v1/admin/keys.
func (h *Handler) IssueKey(c *gin.Context) {
	var req struct {
		SubjectID     string `json:"subjectId" binding:"required"`
		Role          string `json:"role" binding:"required"`
		RegionID      string `json:"regionId"`
		Name          string `json:"name"`
		ExpiresInDays int    `json:"expiresInDays"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "subjectId and role required"})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	rawKey, key, err := h.manager.IssueKey(c.Request.Context(), req.SubjectID, access.Role(req.Role), req.RegionID, req.Name, expiresAt)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role", "message": "role is not in the platform role set"})
		case errors.Is(err, ErrRegionRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "region_required", "message": "regional_manager keys must name a region"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue key"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"rawKey":  rawKey,
		"warning": "Store this key securely. It will not be shown again.",
	})
}

// ListKeys handles GET /v1/admin/keys?subjectId=...
func (h *Handler) ListKeys(c *gin.Context) {
	subjectID := c.Query("subjectId")
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "subjectId query parameter required"})
		return
	}

	keys, err := h.manager.ListKeys(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list keys"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// RevokeKey handles DELETE /v1/admin/keys/:id?subjectId=...
func (h *Handler) RevokeKey(c *gin.Context) {
	subjectID := c.Query("subjectId")
	if subjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "subjectId query parameter required"})
		return
	}

	err := h.manager.RevokeKey(c.Request.Context(), c.Param("id"), subjectID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no such key for subject"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to revoke key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
