package fingerprint_test

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Houeta/listing-monitor/internal/fingerprint"
	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestListing(t *testing.T) {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("normalizes fields", func(t *testing.T) {
		raw := models.RawListing{
			ID:             " 1042 ",
			Title:          "  SaaS   analytics \n business ",
			URL:            "https://example.com/listing/1042",
			AskingPrice:    "$1,250,000",
			MonthlyRevenue: "45k",
			MonthlyProfit:  "",
			Category:       " SaaS ",
			Status:         "Under Offer",
			Attributes:     map[string]string{" Age ": " 4  years", "": "dropped"},
		}

		l, err := fingerprint.Listing(raw, "saas", 3, seen)

		require.NoError(t, err)
		assert.Equal(t, "1042", l.ID)
		assert.Equal(t, "SaaS analytics business", l.Title)
		assert.Equal(t, ptr(1250000.0), l.AskingPrice)
		assert.Equal(t, ptr(45000.0), l.MonthlyRevenue)
		assert.Nil(t, l.MonthlyProfit)
		assert.Equal(t, ptr("SaaS"), l.Category)
		assert.Equal(t, models.StatusSold, l.Status)
		assert.Equal(t, map[string]string{"age": "4 years"}, l.Attributes)
		assert.Equal(t, "saas", l.Target)
		assert.Equal(t, 3, l.Page)
		assert.Equal(t, seen, l.FirstSeen)
		assert.Equal(t, fingerprint.Of(l), l.Fingerprint)
	})

	t.Run("id falls back to url", func(t *testing.T) {
		l, err := fingerprint.Listing(models.RawListing{URL: "https://example.com/listing/abc-77/"}, "all", 1, seen)

		require.NoError(t, err)
		assert.Equal(t, "abc-77", l.ID)
	})

	t.Run("error - no identifier", func(t *testing.T) {
		_, err := fingerprint.Listing(models.RawListing{Title: "orphan"}, "all", 1, seen)

		require.ErrorIs(t, err, fingerprint.ErrMalformedRecord)
	})

	t.Run("error - unparseable price", func(t *testing.T) {
		_, err := fingerprint.Listing(models.RawListing{ID: "1", AskingPrice: "call us"}, "all", 1, seen)

		require.ErrorIs(t, err, fingerprint.ErrMalformedRecord)
		assert.ErrorContains(t, err, "asking price")
	})
}

func TestParseMoney(t *testing.T) {
	testCases := []struct {
		in   string
		want *float64
	}{
		{in: "", want: nil},
		{in: "n/a", want: nil},
		{in: "$100,000", want: ptr(100000.0)},
		{in: "1.5M", want: ptr(1500000.0)},
		{in: "€ 12k", want: ptr(12000.0)},
		{in: "3,400/mo", want: ptr(3400.0)},
		{in: "-2,000", want: ptr(-2000.0)},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := fingerprint.ParseMoney(tc.in)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFingerprint_StableAcrossObservations(t *testing.T) {
	a := models.RawListing{
		ID: "7", Title: "Coffee shop", AskingPrice: "250000", Category: "Food",
		Attributes: map[string]string{"staff": "4", "lease": "10y"},
	}
	b := models.RawListing{
		ID: "7", Title: "  Coffee   shop ", AskingPrice: "$250,000", Category: "Food ",
		Attributes: map[string]string{"lease": "10y", "staff": " 4"},
	}

	la, err := fingerprint.Listing(a, "all", 1, time.Now())
	require.NoError(t, err)
	// Different page and time must not influence the digest.
	lb, err := fingerprint.Listing(b, "all", 4, time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, la.Fingerprint, lb.Fingerprint)
}

func TestFingerprint_RandomizedCollisions(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	seen := make(map[string]string)

	for i := range 2000 {
		l := models.Listing{
			ID:          fmt.Sprintf("id-%d", rng.IntN(50)),
			Title:       fmt.Sprintf("title %d", rng.IntN(20)),
			AskingPrice: ptr(float64(rng.IntN(30) * 1000)),
			Status:      []models.Status{models.StatusActive, models.StatusSold}[rng.IntN(2)],
		}
		if rng.IntN(2) == 0 {
			l.MonthlyRevenue = ptr(float64(rng.IntN(10) * 100))
		}
		rev := "nil"
		if l.MonthlyRevenue != nil {
			rev = fmt.Sprint(*l.MonthlyRevenue)
		}
		key := fmt.Sprintf("%s|%s|%v|%s|%s", l.ID, l.Title, *l.AskingPrice, rev, l.Status)

		fp := fingerprint.Of(l)
		if prev, ok := seen[fp]; ok {
			require.Equal(t, prev, key, "collision at iteration %d", i)
		}
		seen[fp] = key
	}
}

func TestWithoutPrice(t *testing.T) {
	base := models.Listing{ID: "A", Title: "Shop", AskingPrice: ptr(100000.0)}
	repriced := base
	repriced.AskingPrice = ptr(120000.0)
	retitled := base
	retitled.Title = "Shop (motivated seller)"

	assert.NotEqual(t, fingerprint.Of(base), fingerprint.Of(repriced))
	assert.Equal(t, fingerprint.WithoutPrice(base), fingerprint.WithoutPrice(repriced))
	assert.NotEqual(t, fingerprint.WithoutPrice(base), fingerprint.WithoutPrice(retitled))
}

func TestFingerprint_NilVersusZero(t *testing.T) {
	withNil := models.Listing{ID: "A"}
	withZero := models.Listing{ID: "A", AskingPrice: ptr(0.0)}

	assert.NotEqual(t, fingerprint.Of(withNil), fingerprint.Of(withZero))
}

func TestListing_CollidingAttributeKeysAreDeterministic(t *testing.T) {
	raw := models.RawListing{
		ID: "A",
		Attributes: map[string]string{
			"Employees":  "12",
			"employees ": "14",
			"Founded":    "2010",
			" founded":   "2011",
		},
	}
	seenAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := fingerprint.Listing(raw, "all", 1, seenAt)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"employees": "14", "founded": "2010"}, first.Attributes)

	for i := range 50 {
		again, againErr := fingerprint.Listing(raw, "all", 1, seenAt)
		require.NoError(t, againErr)
		require.Equal(t, first.Fingerprint, again.Fingerprint, "observation %d", i)
	}
}
