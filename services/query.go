package services

import (
	"context"
	"math"
	"sort"

	"civicsync-api/geo"
	"civicsync-api/models"
	"civicsync-api/store"

	"go.uber.org/zap"
)

const (
	DefaultPage     = 1
	DefaultLimit    = 20
	DefaultRadiusKm = 100.0
)

// IssueQuery describes a listing request. Latitude and Longitude must both
// be set for a radius search.
type IssueQuery struct {
	Status    models.IssueStatus
	Category  string
	UserID    string
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	Page      int
	Limit     int
	SortBy    store.SortField
	SortOrder string
}

// IssuePage is one page of listing results.
type IssuePage struct {
	Issues     []models.IssueView `json:"issues"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
}

func (q *IssueQuery) normalize() {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.SortBy != store.SortByUpvotes {
		q.SortBy = store.SortByCreatedAt
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
	if q.RadiusKm <= 0 {
		q.RadiusKm = DefaultRadiusKm
	}
}

func (q *IssueQuery) geoPoint() (geo.Point, bool) {
	if q.Latitude == nil || q.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: *q.Latitude, Longitude: *q.Longitude}, true
}

// offset is the number of records before the requested page, saturating
// instead of overflowing for absurd page numbers.
func (q *IssueQuery) offset() int {
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

func totalPages(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total-1)/int64(limit) + 1)
}

// QueryIssues filters, orders and pages issues. With a reference point the
// whole filtered set is ranked by distance, cut to RadiusKm and then paged
// the same way as a plain listing.
func (s *IssueService) QueryIssues(ctx context.Context, q IssueQuery) (*IssuePage, error) {
	q.normalize()
	filter := store.IssueFilter{Status: q.Status, Category: q.Category, UserID: q.UserID}

	origin, nearby := q.geoPoint()
	if !nearby {
		total, err := s.store.CountIssues(ctx, filter)
		if err != nil {
			return nil, err
		}
		issues, err := s.store.FindIssues(ctx, filter, store.FindOptions{
			SortBy:     q.SortBy,
			Descending: q.SortOrder == "desc",
			Skip:       q.offset(),
			Limit:      q.Limit,
		})
		if err != nil {
			return nil, err
		}
		return &IssuePage{
			Issues:     s.withReporterNames(ctx, issues, nil),
			Total:      total,
			Page:       q.Page,
			TotalPages: totalPages(total, q.Limit),
		}, nil
	}

	candidates, err := s.store.FindIssues(ctx, filter, store.FindOptions{SortBy: q.SortBy, Descending: q.SortOrder == "desc"})
	if err != nil {
		return nil, err
	}

	type ranked struct {
		issue    models.Issue
		distance float64
	}
	inRange := make([]ranked, 0, len(candidates))
	for _, issue := range candidates {
		d := geo.Distance(origin, geo.Point{Latitude: issue.Location.Latitude, Longitude: issue.Location.Longitude})
		if d <= q.RadiusKm {
			inRange = append(inRange, ranked{issue: issue, distance: d})
		}
	}
	sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].distance < inRange[j].distance })

	total := int64(len(inRange))
	start := min(q.offset(), len(inRange))
	end := start + min(q.Limit, len(inRange)-start)
	window := inRange[start:end]

	issues := make([]models.Issue, len(window))
	distances := make([]float64, len(window))
	for i, r := range window {
		issues[i] = r.issue
		distances[i] = r.distance
	}

	return &IssuePage{
		Issues:     s.withReporterNames(ctx, issues, distances),
		Total:      total,
		Page:       q.Page,
		TotalPages: totalPages(total, q.Limit),
	}, nil
}

// withReporterNames resolves every owner in one lookup. A failed lookup
// leaves the placeholder name on every record.
func (s *IssueService) withReporterNames(ctx context.Context, issues []models.Issue, distances []float64) []models.IssueView {
	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.UserID
	}
	names, err := s.users.UserNames(ctx, ids)
	if err != nil {
		s.logger.Warn("reporter name lookup failed", zap.Error(err))
		names = nil
	}

	views := make([]models.IssueView, len(issues))
	for i, issue := range issues {
		name := names[issue.UserID]
		if name == "" {
			name = models.PlaceholderUserName
		}
		views[i] = models.IssueView{Issue: issue, ReportedByName: name}
		if distances != nil {
			d := distances[i]
			views[i].Distance = &d
		}
	}
	return views
}

// PopularIssues returns the ten most upvoted issues.
func (s *IssueService) PopularIssues(ctx context.Context, status models.IssueStatus) ([]models.Issue, error) {
	return s.store.FindIssues(ctx, store.IssueFilter{Status: status}, store.FindOptions{
		SortBy:     store.SortByUpvotes,
		Descending: true,
		Limit:      10,
	})
}

// Statistics aggregates counts for one user, or for everyone when userID is empty.
func (s *IssueService) Statistics(ctx context.Context, userID string) (*models.IssueStats, error) {
	return s.store.IssueStats(ctx, store.IssueFilter{UserID: userID})
}
