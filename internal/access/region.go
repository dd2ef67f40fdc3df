package access

import "errors"

// Errors
var (
	ErrMissingRegionAssignment = errors.New("access: regional manager has no region assignment")
	ErrRegionMismatch          = errors.New("access: record belongs to another region")
)

// Caller is the strongly-typed identity of whoever is invoking an operation.
// It is populated once at the auth boundary and passed down; the core never
// digs role or region claims out of raw request metadata.
type Caller struct {
	Role     Role   `json:"role"`
	RegionID string `json:"regionId,omitempty"`
}

// Filter is a region restriction to push into a store query. The zero value
// is unrestricted.
type Filter struct {
	Region string
}

// Restricted reports whether the filter confines results to a region.
func (f Filter) Restricted() bool {
	return f.Region != ""
}

// RegionFilterFor returns the region filter a list query must apply for the
// given caller. Every role except regional_manager gets an unrestricted
// filter. A regional manager without an assigned region is a hard error, not
// an open filter: silently widening the query would leak cross-region data.
func RegionFilterFor(c Caller) (Filter, error) {
	if c.Role != RoleRegionalManager {
		return Filter{}, nil
	}
	if c.RegionID == "" {
		return Filter{}, ErrMissingRegionAssignment
	}
	return Filter{Region: c.RegionID}, nil
}

// AssertRegionScope checks that a single, already-fetched record is within the
// caller's jurisdiction. No-op for every role except regional_manager. An
// empty recordRegion passes: records without a region tag are not scoped.
func AssertRegionScope(c Caller, recordRegion string) error {
	if c.Role != RoleRegionalManager {
		return nil
	}
	if c.RegionID == "" {
		return ErrMissingRegionAssignment
	}
	if recordRegion != "" && recordRegion != c.RegionID {
		return ErrRegionMismatch
	}
	return nil
}
