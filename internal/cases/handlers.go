package cases

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sendaka/sendaka/internal/access"
	"github.com/sendaka/sendaka/internal/metrics"
)

// Handler provides the compliance case endpoints. The server wires these
// behind access.Require(access.GroupCompliance); on top of that, region scope
// is enforced here: list queries get the caller's region filter pushed into
// the store, single-record operations assert the fetched record's region.
type Handler struct {
	svc *Service
}

// NewHandler creates a new case handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the case routes on a compliance-gated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/cases", h.ListCases)
	r.GET("/cases/:id", h.GetCase)
	r.POST("/cases/:id/resolve", h.ResolveCase)
	r.POST("/cases/:id/reopen", h.ReopenCase)
}

// ListCases handles GET /v1/cases.
func (h *Handler) ListCases(c *gin.Context) {
	caller, ok := access.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	filter, err := access.RegionFilterFor(caller)
	if err != nil {
		regionDenied(c, err)
		return
	}

	f := ListFilter{
		ActorID: c.Query("actorId"),
		Region:  filter.Region,
		Status:  Status(c.Query("status")),
	}
	result, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list cases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cases": result, "count": len(result)})
}

// GetCase handles GET /v1/cases/:id.
func (h *Handler) GetCase(c *gin.Context) {
	caller, ok := access.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	cs, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		caseError(c, err)
		return
	}

	if err := access.AssertRegionScope(caller, cs.Region); err != nil {
		regionDenied(c, err)
		return
	}

	c.JSON(http.StatusOK, cs)
}

// ResolveCase handles POST /v1/cases/:id/resolve.
func (h *Handler) ResolveCase(c *gin.Context) {
	caller, ok := access.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		ResolvedBy string `json:"resolvedBy" binding:"required"`
		Note       string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "resolvedBy required"})
		return
	}

	// Fetch first: the region check runs against the record before any
	// mutation happens.
	cs, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		caseError(c, err)
		return
	}
	if err := access.AssertRegionScope(caller, cs.Region); err != nil {
		regionDenied(c, err)
		return
	}

	resolved, err := h.svc.Resolve(c.Request.Context(), cs.ID, req.ResolvedBy, req.Note)
	if err != nil {
		caseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolved)
}

// ReopenCase handles POST /v1/cases/:id/reopen.
func (h *Handler) ReopenCase(c *gin.Context) {
	caller, ok := access.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	cs, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		caseError(c, err)
		return
	}
	if err := access.AssertRegionScope(caller, cs.Region); err != nil {
		regionDenied(c, err)
		return
	}

	reopened, err := h.svc.Reopen(c.Request.Context(), cs.ID)
	if err != nil {
		caseError(c, err)
		return
	}

	c.JSON(http.StatusOK, reopened)
}

// regionDenied translates a region-scope failure into a 403. These are never
// downgraded to an open result.
func regionDenied(c *gin.Context, err error) {
	reason := "region_mismatch"
	if errors.Is(err, access.ErrMissingRegionAssignment) {
		reason = "missing_region_assignment"
	}
	metrics.RegionScopeDenialsTotal.WithLabelValues(reason).Inc()
	c.JSON(http.StatusForbidden, gin.H{"error": reason, "message": err.Error()})
}

func caseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no such case"})
	case errors.Is(err, ErrAlreadyClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "already_resolved", "message": "case is already resolved"})
	case errors.Is(err, ErrAlreadyOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "already_open", "message": "case is already open"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "case operation failed"})
	}
}
