package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsightID_Deterministic(t *testing.T) {
	a := InsightID("bid_splitting", "vendor-1", "SEMSA")
	b := InsightID("bid_splitting", "vendor-1", "SEMSA")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, InsightID("bid_splitting", "vendor-1", "SEME"))
	assert.NotEqual(t, a, InsightID("market_concentration", "vendor-1", "SEMSA"))
	// Field boundaries are part of the hash.
	assert.NotEqual(t, InsightID("d", "ab", "c"), InsightID("d", "a", "bc"))
}

func TestInsight_AssignIDAndLinks(t *testing.T) {
	ins := Insight{
		DetectorID:  "weekend_payment",
		PrimaryKey:  "person-1",
		GroupingKey: "event-9",
		Evidence: []EvidenceRef{
			{EntityID: "person-1", Role: RoleSubject},
			{EventID: "event-9", Role: RoleEvent},
		},
	}
	ins.AssignID()

	assert.Equal(t, InsightID("weekend_payment", "person-1", "event-9"), ins.ID)
	links := ins.Links()
	require.Len(t, links, 2)
	assert.Equal(t, ins.ID, links[0].InsightID)
	assert.Equal(t, "event-9", links[1].EventID)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, ClampConfidence(-5))
	assert.Equal(t, 99, ClampConfidence(140))
	assert.Equal(t, 85, ClampConfidence(85))
	assert.Equal(t, 65, ClampConfidence(65.4))
}

func TestSortInsights(t *testing.T) {
	insights := []Insight{
		{ID: "a", Severity: SeverityMedium, Confidence: 90},
		{ID: "b", Severity: SeverityCritical, Confidence: 60},
		{ID: "c", Severity: SeverityCritical, Confidence: 85},
		{ID: "d", Severity: SeverityHigh, Confidence: 99},
	}

	SortInsights(insights)

	var order []string
	for _, i := range insights {
		order = append(order, i.ID)
	}
	assert.Equal(t, []string{"c", "b", "d", "a"}, order)
}

func TestInsightStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusDetected.CanTransition(StatusUnderReview))
	assert.False(t, StatusDetected.CanTransition(StatusEscalated))
	assert.False(t, StatusDetected.CanTransition(StatusResolved))
	assert.True(t, StatusUnderReview.CanTransition(StatusEscalated))
	assert.True(t, StatusUnderReview.CanTransition(StatusResolved))
	assert.True(t, StatusEscalated.CanTransition(StatusResolved))
	assert.False(t, StatusResolved.CanTransition(StatusDetected))
}

func TestParseSeverityAndStatus(t *testing.T) {
	sev, err := ParseSeverity("high")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, sev)

	_, err = ParseSeverity("urgent")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	st, err := ParseStatus("under_review")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, st)

	_, err = ParseStatus("closed")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestInsightFilter_Matches(t *testing.T) {
	ins := &Insight{DetectorID: "statistical_outlier", Severity: SeverityHigh, Status: StatusDetected}

	assert.True(t, InsightFilter{}.Matches(ins))
	assert.True(t, InsightFilter{MinSeverity: SeverityMedium}.Matches(ins))
	assert.False(t, InsightFilter{MinSeverity: SeverityCritical}.Matches(ins))
	assert.False(t, InsightFilter{DetectorID: "bid_splitting"}.Matches(ins))
	assert.False(t, InsightFilter{Status: StatusResolved}.Matches(ins))
}
