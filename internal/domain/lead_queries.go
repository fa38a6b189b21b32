package domain

import (
	"strings"
	"time"
)

// LeadFilter combines the derived lead queries. Zero value matches all leads.
type LeadFilter struct {
	Stage          *WorkflowStage
	Urgency        *Urgency
	ActiveOnly     bool
	OverdueOnly    bool
	NeedsSiteVisit bool
	Query          string
}

// Match reports whether l satisfies every populated criterion.
func (f LeadFilter) Match(l *Lead, now time.Time) bool {
	if f.Stage != nil && l.Stage() != *f.Stage {
		return false
	}
	if f.Urgency != nil && l.Urgency != *f.Urgency {
		return false
	}
	if f.ActiveOnly && !isActiveLead(l) {
		return false
	}
	if f.OverdueOnly && !l.Overdue(now) {
		return false
	}
	if f.NeedsSiteVisit && !(isActiveLead(l) && l.SiteVisit.Pending()) {
		return false
	}
	return matchesQuery(l, f.Query)
}

// FilterLeads applies f and keeps input order.
func FilterLeads(leads []*Lead, f LeadFilter, now time.Time) []*Lead {
	out := make([]*Lead, 0, len(leads))
	for _, l := range leads {
		if f.Match(l, now) {
			out = append(out, l)
		}
	}
	return out
}

func isActiveLead(l *Lead) bool { return l.IsActive && !l.IsArchived }

// matchesQuery is a case-insensitive substring match on name and address
// and a raw substring match on phone. An empty query matches everything.
func matchesQuery(l *Lead, q string) bool {
	if q == "" {
		return true
	}
	lower := strings.ToLower(q)
	return strings.Contains(strings.ToLower(l.CustomerName), lower) ||
		strings.Contains(strings.ToLower(l.FullAddress()), lower) ||
		strings.Contains(l.CustomerPhone, q)
}

// LeadStats are the pipeline aggregates.
type LeadStats struct {
	Total               int                   `json:"total"`
	Active              int                   `json:"active"`
	Overdue             int                   `json:"overdue"`
	ByStage             map[WorkflowStage]int `json:"byStage"`
	BySource            map[LeadSource]int    `json:"bySource"`
	ConversionRate      float64               `json:"conversionRate"`
	AverageResponseTime *float64              `json:"averageResponseHours,omitempty"`
}

// ComputeLeadStats aggregates over every lead, archived ones included,
// except for the active and overdue counts.
func ComputeLeadStats(leads []*Lead, now time.Time) LeadStats {
	stats := LeadStats{
		Total:          len(leads),
		ByStage:        make(map[WorkflowStage]int, len(WorkflowStages)),
		BySource:       CountBySource(leads),
		ConversionRate: ConversionRate(leads),
	}
	for _, s := range WorkflowStages {
		stats.ByStage[s] = 0
	}
	for _, l := range leads {
		stats.ByStage[l.Stage()]++
		if isActiveLead(l) {
			stats.Active++
		}
		if l.Overdue(now) {
			stats.Overdue++
		}
	}
	if avg, ok := AverageResponseTime(leads); ok {
		hours := avg.Hours()
		stats.AverageResponseTime = &hours
	}
	return stats
}

// ConversionRate is converted / total * 100, or 0 for no leads.
func ConversionRate(leads []*Lead) float64 {
	if len(leads) == 0 {
		return 0
	}
	converted := 0
	for _, l := range leads {
		if l.IsConverted {
			converted++
		}
	}
	return float64(converted) / float64(len(leads)) * 100
}

// AverageResponseTime is the mean of lastContact - created over leads with
// a recorded contact. ok is false when no lead has been contacted.
func AverageResponseTime(leads []*Lead) (avg time.Duration, ok bool) {
	var total time.Duration
	n := 0
	for _, l := range leads {
		if l.LastContactDate == nil {
			continue
		}
		total += l.LastContactDate.Sub(l.CreatedAt)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / time.Duration(n), true
}

func CountBySource(leads []*Lead) map[LeadSource]int {
	counts := make(map[LeadSource]int)
	for _, l := range leads {
		counts[l.Source]++
	}
	return counts
}
