package cli

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/detectors"
)

// mockInsightService implements driving.InsightService for testing.
type mockInsightService struct {
	insights []domain.Insight
	filter   domain.InsightFilter

	updatedID     string
	updatedStatus domain.InsightStatus
}

func (m *mockInsightService) Persist(_ context.Context, insights []domain.Insight) (int, int, error) {
	m.insights = append(m.insights, insights...)
	return len(insights), 0, nil
}

func (m *mockInsightService) List(_ context.Context, filter domain.InsightFilter) ([]domain.Insight, error) {
	m.filter = filter
	return m.insights, nil
}

func (m *mockInsightService) Get(_ context.Context, id string) (*domain.Insight, error) {
	for i := range m.insights {
		if m.insights[i].ID == id {
			return &m.insights[i], nil
		}
	}
	return nil, fmt.Errorf("insight %s: %w", id, domain.ErrNotFound)
}

func (m *mockInsightService) UpdateStatus(_ context.Context, id string, status domain.InsightStatus) error {
	m.updatedID = id
	m.updatedStatus = status
	return nil
}

var (
	insightIDOne = "abc" + strings.Repeat("0", 61)
	insightIDTwo = "abd" + strings.Repeat("1", 61)
)

func sampleInsights() []domain.Insight {
	return []domain.Insight{
		{
			ID:             insightIDOne,
			DetectorID:     "bid_splitting",
			Severity:       domain.SeverityHigh,
			Confidence:     85,
			ExposureAmount: 98000.5,
			Title:          "Purchases split below the bidding threshold",
			Description:    "Seven purchases of the same item in 30 days.",
			LegalBasisTag:  detectors.TagBidSplitting,
			Evidence: []domain.EvidenceRef{
				{EntityID: "org-1", Role: domain.RoleSubject},
				{EntityID: "org-1", EventID: "ev-9", Role: domain.RoleEvent},
			},
			Status:    domain.StatusDetected,
			CreatedAt: time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC),
		},
		{
			ID:         insightIDTwo,
			DetectorID: "salary_ceiling",
			Severity:   domain.SeverityLow,
			Confidence: 60,
			Title:      "Salary above the constitutional ceiling",
			Status:     domain.StatusUnderReview,
		},
	}
}

func setupInsightsTest(m *mockInsightService) func() {
	old := insightService
	insightService = m
	return func() {
		insightService = old
	}
}

func TestInsightsCmd_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range insightsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
	assert.True(t, names["status"])
}

func TestInsightsList_PassesFilter(t *testing.T) {
	m := &mockInsightService{insights: sampleInsights()}
	defer setupInsightsTest(m)()

	out, err := executeCommand(t, "insights", "list",
		"--detector", "bid_splitting", "--min-severity", "high", "--status", "detected",
		"--entity", "org-1", "--limit", "5")

	require.NoError(t, err)
	assert.Equal(t, domain.InsightFilter{
		DetectorID:  "bid_splitting",
		MinSeverity: domain.SeverityHigh,
		Status:      domain.StatusDetected,
		EntityID:    "org-1",
		Limit:       5,
	}, m.filter)
	assert.Contains(t, out, insightIDOne[:12])
	assert.NotContains(t, out, insightIDOne[:13])
	assert.Contains(t, out, "Purchases split below the bidding threshold")
}

func TestInsightsList_DefaultLimit(t *testing.T) {
	m := &mockInsightService{}
	defer setupInsightsTest(m)()

	out, err := executeCommand(t, "insights", "list")

	require.NoError(t, err)
	assert.Equal(t, 50, m.filter.Limit)
	assert.Contains(t, out, "No insights found.")
}

func TestInsightsList_InvalidSeverity(t *testing.T) {
	m := &mockInsightService{}
	defer setupInsightsTest(m)()

	_, err := executeCommand(t, "insights", "list", "--min-severity", "extreme")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInsightsShow_ByPrefix(t *testing.T) {
	m := &mockInsightService{insights: sampleInsights()}
	defer setupInsightsTest(m)()

	out, err := executeCommand(t, "insights", "show", "ABC")

	require.NoError(t, err)
	assert.Contains(t, out, "ID:          "+insightIDOne)
	assert.Contains(t, out, "Confidence:  85%")
	assert.Contains(t, out, "Exposure:    98000.50")
	assert.Contains(t, out, "Detected:    2024-03-09 14:30")
	assert.Contains(t, out, "Legal basis (fracionamento):")
	assert.Contains(t, out, "event        org-1 / ev-9")
}

func TestInsightsShow_AmbiguousPrefix(t *testing.T) {
	m := &mockInsightService{insights: sampleInsights()}
	defer setupInsightsTest(m)()

	_, err := executeCommand(t, "insights", "show", "ab")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "matches 2 insights")
}

func TestInsightsShow_NotFound(t *testing.T) {
	m := &mockInsightService{insights: sampleInsights()}
	defer setupInsightsTest(m)()

	_, err := executeCommand(t, "insights", "show", "ffff")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsightsStatus_Updates(t *testing.T) {
	m := &mockInsightService{insights: sampleInsights()}
	defer setupInsightsTest(m)()

	out, err := executeCommand(t, "insights", "status", "abd", "escalated")

	require.NoError(t, err)
	assert.Equal(t, insightIDTwo, m.updatedID)
	assert.Equal(t, domain.StatusEscalated, m.updatedStatus)
	assert.Contains(t, out, "is now ESCALATED")
}

func TestInsightsStatus_FullIDSkipsLookup(t *testing.T) {
	m := &mockInsightService{}
	defer setupInsightsTest(m)()

	_, err := executeCommand(t, "insights", "status", insightIDOne, "under_review")

	require.NoError(t, err)
	assert.Equal(t, insightIDOne, m.updatedID)
	assert.Equal(t, domain.StatusUnderReview, m.updatedStatus)
}

func TestInsightsStatus_InvalidStatus(t *testing.T) {
	m := &mockInsightService{insights: sampleInsights()}
	defer setupInsightsTest(m)()

	_, err := executeCommand(t, "insights", "status", "abc", "closed")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, m.updatedID)
}

func TestInsightsCmd_ServiceNotConfigured(t *testing.T) {
	old := insightService
	insightService = nil
	defer func() { insightService = old }()

	for _, args := range [][]string{
		{"insights", "list"},
		{"insights", "show", "abc"},
		{"insights", "status", "abc", "resolved"},
	} {
		_, err := executeCommand(t, args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insight service not configured")
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "abc000000000", shortID(insightIDOne))
}
