package matcher

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
)

func cat(id, name string) domain.Category {
	return domain.Category{ID: domain.CategoryID(id), Name: name}
}

func ids(v ...string) []domain.CategoryID {
	out := make([]domain.CategoryID, len(v))
	for i, s := range v {
		out[i] = domain.CategoryID(s)
	}
	return out
}

func TestMatch_ExactMatch(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "Shoes")},
		SourceA:   []domain.Category{cat("10", "Shoes")},
		Threshold: 0.8,
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Proposals, 1)
	assert.Equal(t, domain.Proposal{
		CanonicalID: "1",
		SourceAIDs:  ids("10"),
		SourceBIDs:  ids(),
	}, res.Proposals[0])
	assert.Equal(t, 1, res.Stats.ExactMatchCount)
	assert.Equal(t, 1, res.Stats.MappedCount)
	assert.Equal(t, 1, res.Stats.TotalProcessed)
	assert.Equal(t, 100, res.Stats.AvgSimilarityPercent)
}

func TestMatch_BelowThreshold(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "Shoes")},
		SourceA:   []domain.Category{cat("10", "Boots")},
		Threshold: 0.9,
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Proposals)
	assert.NotNil(t, res.Proposals)
	assert.Equal(t, 0, res.Stats.MappedCount)
	assert.Equal(t, 0, res.Stats.AvgSimilarityPercent)
}

func TestMatch_BothSourcesShareCanonical(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "Jacket")},
		SourceA:   []domain.Category{cat("10", "Jackets")},
		SourceB:   []domain.Category{cat("20", "Jackets")},
		Threshold: 0.6,
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Proposals, 1)
	assert.Equal(t, domain.CategoryID("1"), res.Proposals[0].CanonicalID)
	assert.Equal(t, ids("10"), res.Proposals[0].SourceAIDs)
	assert.Equal(t, ids("20"), res.Proposals[0].SourceBIDs)

	assert.Equal(t, 2, res.Stats.MappedCount)
	assert.Equal(t, 0, res.Stats.ExactMatchCount)
	assert.Equal(t, 2, res.Stats.TotalProcessed)
	assert.Equal(t, int(math.Round((1.0-1.0/7.0)*100)), res.Stats.AvgSimilarityPercent)
}

func TestMatch_EmptyInputs(t *testing.T) {
	res, err := Match(context.Background(), Input{Threshold: 0.5}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Proposals)
	assert.Equal(t, domain.MatchStats{}, res.Stats)
}

func TestMatch_InvalidThreshold(t *testing.T) {
	for _, th := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		t.Run(fmt.Sprint(th), func(t *testing.T) {
			res, err := Match(context.Background(), Input{Threshold: th}, nil)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}
}

func TestMatch_ThresholdIsStrict(t *testing.T) {
	// "ab" vs "ac" scores exactly 0.5.
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "ab")},
		SourceA:   []domain.Category{cat("10", "ac")},
		Threshold: 0.5,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
}

func TestMatch_TieKeepsFirstCandidate(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "shoe"), cat("2", "shoe!"), cat("3", "shoex")},
		SourceA:   []domain.Category{cat("10", "shoes")},
		Threshold: 0.5,
	}, nil)
	require.NoError(t, err)

	// All three names score 0.8; the first one wins.
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, domain.CategoryID("1"), res.Proposals[0].CanonicalID)

	res, err = Match(context.Background(), Input{
		Canonical: []domain.Category{cat("2", "shoe!"), cat("3", "shoex")},
		SourceA:   []domain.Category{cat("10", "shoes")},
		Threshold: 0.5,
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, domain.CategoryID("2"), res.Proposals[0].CanonicalID)
}

func TestMatch_ExactIndexPrefersFirstDuplicate(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "Bags"), cat("2", " bags ")},
		SourceA:   []domain.Category{cat("10", "BAGS")},
		Threshold: 0.8,
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Proposals, 1)
	assert.Equal(t, domain.CategoryID("1"), res.Proposals[0].CanonicalID)
}

func TestMatch_CanonicalAccumulatesLinks(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "Shoes"), cat("2", "Hats")},
		SourceA:   []domain.Category{cat("10", "Hats"), cat("11", "Shoes"), cat("12", "Shoe")},
		SourceB:   []domain.Category{cat("20", "shoes"), cat("21", "Gloves")},
		Threshold: 0.7,
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Proposals, 2)
	// Ordered by first time a canonical category received a link.
	assert.Equal(t, domain.CategoryID("2"), res.Proposals[0].CanonicalID)
	assert.Equal(t, ids("10"), res.Proposals[0].SourceAIDs)

	assert.Equal(t, domain.CategoryID("1"), res.Proposals[1].CanonicalID)
	assert.Equal(t, ids("11", "12"), res.Proposals[1].SourceAIDs)
	assert.Equal(t, ids("20"), res.Proposals[1].SourceBIDs)

	assert.Equal(t, 5, res.Stats.TotalProcessed)
	assert.Equal(t, 4, res.Stats.MappedCount)
	assert.Equal(t, 3, res.Stats.ExactMatchCount)
}

func TestMatch_ResidualPairNeedsCanonicalAnchor(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "Furniture")},
		SourceA:   []domain.Category{cat("10", "Garden tools")},
		SourceB:   []domain.Category{cat("20", "Garden tools")},
		Threshold: 0.8,
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Proposals)
	assert.Equal(t, 0, res.Stats.MappedCount)
}

func TestMatch_EmptyNamesNeverMatch(t *testing.T) {
	res, err := Match(context.Background(), Input{
		Canonical: []domain.Category{cat("1", "")},
		SourceA:   []domain.Category{cat("10", "  ")},
		Threshold: 0.5,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
}

func TestMatch_Deterministic(t *testing.T) {
	in := Input{Threshold: 0.6}
	for i := range 40 {
		in.Canonical = append(in.Canonical, cat(fmt.Sprint(i), fmt.Sprintf("Category %d", i)))
		in.SourceA = append(in.SourceA, cat(fmt.Sprint(100+i), fmt.Sprintf("category %d", i*3)))
		in.SourceB = append(in.SourceB, cat(fmt.Sprint(200+i), fmt.Sprintf("Categories %d", i*2)))
	}

	first, err := Match(context.Background(), in, nil)
	require.NoError(t, err)
	second, err := Match(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Proposals, second.Proposals)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestMatch_Progress(t *testing.T) {
	in := Input{Threshold: 0.8}
	for i := range 100 {
		in.Canonical = append(in.Canonical, cat(fmt.Sprint(i), fmt.Sprintf("Item %d", i)))
		in.SourceA = append(in.SourceA, cat(fmt.Sprint(100+i), fmt.Sprintf("item %d", i)))
		in.SourceB = append(in.SourceB, cat(fmt.Sprint(200+i), fmt.Sprintf("ITEM %d", i)))
	}

	progress := make(chan domain.MatchProgress, 1024)
	res, err := Match(context.Background(), in, progress)
	require.NoError(t, err)
	close(progress)

	var events []domain.MatchProgress
	for p := range progress {
		events = append(events, p)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, domain.ProgressStart, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, domain.ProgressComplete, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, res.Stats, last.Stats)

	seen := map[domain.MatchProgressStatus]bool{}
	for i, e := range events {
		seen[e.Status] = true
		assert.NotEmpty(t, e.Message)
		if i > 0 {
			assert.GreaterOrEqual(t, e.Percent, events[i-1].Percent)
		}
	}
	assert.True(t, seen[domain.ProgressSourceA])
	assert.True(t, seen[domain.ProgressSourceB])
	assert.True(t, seen[domain.ProgressResidual])
	// Start + complete + 3 phase headers + 19 intermediate reports per phase.
	assert.Len(t, events, 2+3+19*3)
}

func TestMatch_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Match(ctx, Input{
		Canonical: []domain.Category{cat("1", "Shoes")},
		SourceA:   []domain.Category{cat("10", "Shoes")},
		Threshold: 0.5,
	}, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatch_CancelWhileBlockedOnProgress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nobody reads the channel, so the first report blocks until the deadline.
	progress := make(chan domain.MatchProgress)
	res, err := Match(ctx, Input{
		Canonical: []domain.Category{cat("1", "Shoes")},
		SourceA:   []domain.Category{cat("10", "Shoes")},
		Threshold: 0.5,
	}, progress)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func BenchmarkMatch(b *testing.B) {
	in := Input{Threshold: 0.8}
	for i := range 300 {
		in.Canonical = append(in.Canonical, cat(fmt.Sprint(i), fmt.Sprintf("Canonical category %d", i)))
		in.SourceA = append(in.SourceA, cat(fmt.Sprint(1000+i), fmt.Sprintf("Marketplace category %d", i)))
		in.SourceB = append(in.SourceB, cat(fmt.Sprint(2000+i), fmt.Sprintf("Other category %d", i)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Match(context.Background(), in, nil)
	}
}
