package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"civicsync-api/models"
	"civicsync-api/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingDirectory struct{}

func (failingDirectory) UserNames(context.Context, []string) (map[string]string, error) {
	return nil, errors.New("users collection unavailable")
}

func newTestService(t *testing.T) (*IssueService, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	svc := NewIssueService(mem, zaptest.NewLogger(t))
	return svc, mem
}

func insert(t *testing.T, mem *store.MemoryStore, issue models.Issue) models.Issue {
	t.Helper()
	require.NoError(t, mem.InsertIssue(context.Background(), &issue))
	return issue
}

func ptr(f float64) *float64 { return &f }

func TestQueryIssuesRadiusScenario(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	a := insert(t, mem, models.Issue{Title: "A", Status: models.StatusOpen, Location: models.Location{Latitude: 10, Longitude: 10}})
	b := insert(t, mem, models.Issue{Title: "B", Status: models.StatusOpen, Location: models.Location{Latitude: 10.01, Longitude: 10.01}})

	page, err := svc.QueryIssues(ctx, IssueQuery{Latitude: ptr(10), Longitude: ptr(10), RadiusKm: 5})
	require.NoError(t, err)
	require.Len(t, page.Issues, 2)
	assert.Equal(t, a.ID, page.Issues[0].ID)
	assert.Equal(t, b.ID, page.Issues[1].ID)
	require.NotNil(t, page.Issues[0].Distance)
	assert.InDelta(t, 0, *page.Issues[0].Distance, 1e-9)
	assert.InDelta(t, 1.56, *page.Issues[1].Distance, 0.02)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.TotalPages)

	page, err = svc.QueryIssues(ctx, IssueQuery{Latitude: ptr(10), Longitude: ptr(10), RadiusKm: 1})
	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, a.ID, page.Issues[0].ID)
	assert.Equal(t, int64(1), page.Total)
}

func TestQueryIssuesRadiusDefaultsAndOverridesSort(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	far := insert(t, mem, models.Issue{Title: "far", Upvotes: 50, CreatedAt: base.Add(time.Hour), Location: models.Location{Latitude: 10.5, Longitude: 10}})
	near := insert(t, mem, models.Issue{Title: "near", Upvotes: 1, CreatedAt: base, Location: models.Location{Latitude: 10.1, Longitude: 10}})
	insert(t, mem, models.Issue{Title: "outside", Location: models.Location{Latitude: 12, Longitude: 10}})

	page, err := svc.QueryIssues(ctx, IssueQuery{Latitude: ptr(10), Longitude: ptr(10), SortBy: store.SortByUpvotes})
	require.NoError(t, err)
	require.Len(t, page.Issues, 2)
	assert.Equal(t, near.ID, page.Issues[0].ID)
	assert.Equal(t, far.ID, page.Issues[1].ID)
	for _, v := range page.Issues {
		assert.LessOrEqual(t, *v.Distance, DefaultRadiusKm)
	}
}

func TestQueryIssuesRadiusIsPaginated(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	for i := range 5 {
		insert(t, mem, models.Issue{Location: models.Location{Latitude: 10 + float64(i)*0.01, Longitude: 10}})
	}

	page, err := svc.QueryIssues(ctx, IssueQuery{Latitude: ptr(10), Longitude: ptr(10), RadiusKm: 50, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Issues, 2)
	assert.InDelta(t, 10.02, page.Issues[0].Location.Latitude, 1e-9)
	assert.InDelta(t, 10.03, page.Issues[1].Location.Latitude, 1e-9)

	page, err = svc.QueryIssues(ctx, IssueQuery{Latitude: ptr(10), Longitude: ptr(10), RadiusKm: 50, Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Issues)
	assert.Equal(t, int64(5), page.Total)
}

func TestQueryIssuesRadiusNeverGrowsCandidates(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	for i := range 10 {
		insert(t, mem, models.Issue{Location: models.Location{Latitude: 10 + float64(i)*0.2, Longitude: 10}})
	}

	unfiltered, err := svc.QueryIssues(ctx, IssueQuery{Limit: 100})
	require.NoError(t, err)
	for _, radius := range []float64{0.5, 5, 25, 100, 1000} {
		page, err := svc.QueryIssues(ctx, IssueQuery{Latitude: ptr(10), Longitude: ptr(10), RadiusKm: radius, Limit: 100})
		require.NoError(t, err)
		assert.LessOrEqual(t, page.Total, unfiltered.Total)
		for _, v := range page.Issues {
			assert.LessOrEqual(t, *v.Distance, radius)
		}
	}
}

func TestQueryIssuesPlainListing(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	mem.PutUser("u1", "Asha")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 7 {
		insert(t, mem, models.Issue{
			UserID:    "u1",
			Category:  "Road",
			Status:    models.StatusOpen,
			Upvotes:   i * 3 % 7,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	insert(t, mem, models.Issue{UserID: "u2", Category: "Water", Status: models.StatusClosed, CreatedAt: base})

	page, err := svc.QueryIssues(ctx, IssueQuery{Category: "Road", Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Issues, 3)
	// newest first, skipping the three newest
	assert.Equal(t, base.Add(3*time.Minute), page.Issues[0].CreatedAt)
	assert.Equal(t, base.Add(1*time.Minute), page.Issues[2].CreatedAt)
	for _, v := range page.Issues {
		assert.Equal(t, "Asha", v.ReportedByName)
		assert.Nil(t, v.Distance)
	}

	page, err = svc.QueryIssues(ctx, IssueQuery{Category: "Road", SortBy: store.SortByUpvotes, SortOrder: "asc", Limit: 100})
	require.NoError(t, err)
	for i := 1; i < len(page.Issues); i++ {
		assert.LessOrEqual(t, page.Issues[i-1].Upvotes, page.Issues[i].Upvotes)
	}

	page, err = svc.QueryIssues(ctx, IssueQuery{Status: models.StatusClosed})
	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, models.PlaceholderUserName, page.Issues[0].ReportedByName)
}

func TestQueryIssuesClampsPagination(t *testing.T) {
	svc, mem := newTestService(t)
	insert(t, mem, models.Issue{})

	page, err := svc.QueryIssues(context.Background(), IssueQuery{Page: -3, Limit: 0, SortBy: "bogus", SortOrder: "sideways"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, page.Page)
	assert.Equal(t, 1, page.TotalPages)
	assert.Len(t, page.Issues, 1)
}

func TestQueryIssuesHugePageIsEmptyNotFirst(t *testing.T) {
	svc, mem := newTestService(t)
	insert(t, mem, models.Issue{Location: models.Location{Latitude: 1, Longitude: 1}})

	tests := []struct {
		name  string
		query IssueQuery
	}{
		{"plain", IssueQuery{Page: math.MaxInt, Limit: 20}},
		{"radius", IssueQuery{Page: math.MaxInt, Limit: 20, Latitude: ptr(1), Longitude: ptr(1)}},
		{"huge limit", IssueQuery{Page: 3, Limit: math.MaxInt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.QueryIssues(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Empty(t, page.Issues)
			assert.EqualValues(t, 1, page.Total)
			assert.Equal(t, tt.query.Page, page.Page)
		})
	}
}

func TestQueryIssuesDegradesWhenUserLookupFails(t *testing.T) {
	svc, mem := newTestService(t)
	svc.users = failingDirectory{}
	mem.PutUser("u1", "Asha")
	insert(t, mem, models.Issue{UserID: "u1"})

	page, err := svc.QueryIssues(context.Background(), IssueQuery{})
	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, models.PlaceholderUserName, page.Issues[0].ReportedByName)
}

func TestPopularIssuesTopTen(t *testing.T) {
	svc, mem := newTestService(t)
	for i := range 15 {
		insert(t, mem, models.Issue{Upvotes: i, Status: models.StatusOpen})
	}
	insert(t, mem, models.Issue{Upvotes: 100, Status: models.StatusResolved})

	popular, err := svc.PopularIssues(context.Background(), models.StatusOpen)
	require.NoError(t, err)
	require.Len(t, popular, 10)
	assert.Equal(t, 14, popular[0].Upvotes)
	assert.Equal(t, 5, popular[9].Upvotes)
}
