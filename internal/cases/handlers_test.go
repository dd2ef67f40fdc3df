package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendaka/sendaka/internal/access"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newCaseRouter builds a router whose auth boundary is stubbed to the given
// caller, mirroring how the server installs the middleware chain.
func newCaseRouter(svc *Service, caller *access.Caller) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller != nil {
			access.WithCaller(c, *caller)
		}
		c.Next()
	})
	h := NewHandler(svc)
	h.RegisterRoutes(r.Group("/v1", access.Require(access.GroupCompliance)))
	return r
}

func seedCases(t *testing.T, svc *Service) (north *Case, south *Case) {
	t.Helper()
	ctx := context.Background()
	var err error
	north, err = svc.OpenForAssessment(ctx, blockedAssessment("acct_n", "north"))
	require.NoError(t, err)
	south, err = svc.OpenForAssessment(ctx, blockedAssessment("acct_s", "south"))
	require.NoError(t, err)
	return north, south
}

func TestListCases_RegionalManagerFiltered(t *testing.T) {
	svc := NewService(NewMemoryStore())
	seedCases(t, svc)
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleRegionalManager, RegionID: "north"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Cases []*Case `json:"cases"`
		Count int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "north", resp.Cases[0].Region)
}

func TestListCases_AdminUnfiltered(t *testing.T) {
	svc := NewService(NewMemoryStore())
	seedCases(t, svc)
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestListCases_ManagerWithoutRegionIsHardStop(t *testing.T) {
	svc := NewService(NewMemoryStore())
	seedCases(t, svc)
	// Shouldn't happen through key issuance, but data drift must not widen
	// the query.
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleRegionalManager})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "missing_region_assignment")
}

func TestGetCase_RegionMismatch(t *testing.T) {
	svc := NewService(NewMemoryStore())
	_, south := seedCases(t, svc)
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleRegionalManager, RegionID: "north"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases/"+south.ID, nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "region_mismatch")
}

func TestGetCase_OwnRegionAllowed(t *testing.T) {
	svc := NewService(NewMemoryStore())
	north, _ := seedCases(t, svc)
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleRegionalManager, RegionID: "north"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases/"+north.ID, nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResolveCase_CrossRegionDenied(t *testing.T) {
	svc := NewService(NewMemoryStore())
	_, south := seedCases(t, svc)
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleRegionalManager, RegionID: "north"})

	body, _ := json.Marshal(gin.H{"resolvedBy": "staff_1", "note": "x"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/cases/"+south.ID+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	// The record must be untouched.
	got, err := svc.Get(context.Background(), south.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestResolveCase_HappyPath(t *testing.T) {
	svc := NewService(NewMemoryStore())
	north, _ := seedCases(t, svc)
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleSuperAdmin})

	body, _ := json.Marshal(gin.H{"resolvedBy": "staff_9", "note": "reviewed"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/cases/"+north.ID+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got Case
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, "staff_9", got.ResolvedBy)
}

func TestCases_RoleGate(t *testing.T) {
	svc := NewService(NewMemoryStore())
	seedCases(t, svc)

	// Merchants have no compliance access.
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleMerchant})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No caller at all.
	r = newCaseRouter(svc, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetCase_NotFound(t *testing.T) {
	svc := NewService(NewMemoryStore())
	r := newCaseRouter(svc, &access.Caller{Role: access.RoleAdmin})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/cases/case_missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
