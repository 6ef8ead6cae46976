package ragfilter

import (
	"context"
	"fmt"
)

// DocStats describes the shape of one user's accessible corpus.
type DocStats struct {
	UserID         string         `json:"user_id"`
	Total          int            `json:"total"`
	ByCategory     map[string]int `json:"by_category"`
	ByDepartment   map[string]int `json:"by_department"`
	BySourceSystem map[string]int `json:"by_source_system"`
	Sensitive      int            `json:"sensitive"`
	Personal       int            `json:"personal"`
}

// AccessibleDocumentStats breaks down the documents the user can reach.
// Intended for admin tooling; it bypasses the decision cache.
func (f *Filter) AccessibleDocumentStats(ctx context.Context, userID string) (*DocStats, error) {
	user, err := f.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	stats := &DocStats{
		UserID:         userID,
		ByCategory:     map[string]int{},
		ByDepartment:   map[string]int{},
		BySourceSystem: map[string]int{},
	}
	if !user.IsActive || !user.AccessLevel.CanAccessSystem() {
		return stats, nil
	}

	summary, err := f.store.SummarizeAccessibleDocuments(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize documents for %s: %w", userID, err)
	}

	stats.Total = summary.Total
	stats.ByCategory = summary.ByCategory
	stats.ByDepartment = summary.ByDepartment
	stats.BySourceSystem = summary.BySourceSystem
	stats.Sensitive = summary.Sensitive
	stats.Personal = summary.Personal
	return stats, nil
}
