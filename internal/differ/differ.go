// Package differ computes the change set between a baseline and freshly observed listings.
package differ

import (
	"sort"
	"time"

	"github.com/Houeta/listing-monitor/internal/fingerprint"
	"github.com/Houeta/listing-monitor/internal/models"
)

// Result - the outcome of one diff.
type Result struct {
	// Changes are sorted by listing ID. Score and category are left for the scorer.
	Changes []models.ChangeRecord
	// Listings is the complete next baseline listing set.
	Listings map[string]models.Listing
	// Unchanged counts observed listings whose fingerprint matched the baseline.
	Unchanged int
	// Carried counts baseline listings outside the scope, copied forward untouched.
	Carried int
}

// Dedupe collapses observed listings sharing an ID; the later occurrence wins.
// Order of first appearance is kept.
func Dedupe(observed []models.Listing) []models.Listing {
	index := make(map[string]int, len(observed))
	out := make([]models.Listing, 0, len(observed))
	for _, l := range observed {
		if i, ok := index[l.ID]; ok {
			out[i] = l
			continue
		}
		index[l.ID] = len(out)
		out = append(out, l)
	}
	return out
}

// Diff compares observed against baseline. Absence only counts as removal for baseline
// listings last seen inside scope; everything else outside the scope is carried forward.
func Diff(baseline map[string]models.Listing, observed []models.Listing, scope models.Scope, now time.Time) Result {
	observed = Dedupe(observed)

	res := Result{Listings: make(map[string]models.Listing, len(baseline)+len(observed))}
	observedIDs := make(map[string]struct{}, len(observed))

	for _, obs := range observed {
		observedIDs[obs.ID] = struct{}{}

		if obs.Fingerprint == "" {
			obs.Fingerprint = fingerprint.Of(obs)
		}

		prev, found := baseline[obs.ID]
		if !found {
			next := obs
			next.FirstSeen, next.LastSeen, next.LastModified = now, now, now
			res.Listings[next.ID] = next
			res.Changes = append(res.Changes, models.ChangeRecord{
				ListingID:  next.ID,
				ChangeType: models.ChangeNew,
				After:      listingPtr(next),
				DetectedAt: now,
			})
			continue
		}

		next := obs
		next.FirstSeen = prev.FirstSeen
		next.LastSeen = now

		if prev.Fingerprint == obs.Fingerprint {
			next.LastModified = prev.LastModified
			res.Listings[next.ID] = next
			res.Unchanged++
			continue
		}

		next.LastModified = now
		res.Listings[next.ID] = next

		changeType := models.ChangeModified
		if onlyPriceChanged(prev, next) {
			changeType = models.ChangePriceChanged
		}
		res.Changes = append(res.Changes, models.ChangeRecord{
			ListingID:  next.ID,
			ChangeType: changeType,
			Before:     listingPtr(prev),
			After:      listingPtr(next),
			DetectedAt: now,
		})
	}

	for id, prev := range baseline {
		if _, seen := observedIDs[id]; seen {
			continue
		}

		if prev.Status == models.StatusRemoved || !scope.Covers(prev.Target, prev.Page) {
			res.Listings[id] = prev
			res.Carried++
			continue
		}

		gone := prev
		gone.Status = models.StatusRemoved
		gone.LastModified = now
		gone.Fingerprint = fingerprint.Of(gone)
		res.Listings[id] = gone
		res.Changes = append(res.Changes, models.ChangeRecord{
			ListingID:  id,
			ChangeType: models.ChangeRemoved,
			Before:     listingPtr(prev),
			After:      listingPtr(gone),
			DetectedAt: now,
		})
	}

	// One record per listing ID, so sorting by ID alone is total.
	sort.Slice(res.Changes, func(i, j int) bool {
		return res.Changes[i].ListingID < res.Changes[j].ListingID
	})

	return res
}

// onlyPriceChanged reports whether the asking price is the single tracked difference.
func onlyPriceChanged(prev, next models.Listing) bool {
	if equalAmount(prev.AskingPrice, next.AskingPrice) {
		return false
	}
	return fingerprint.WithoutPrice(prev) == fingerprint.WithoutPrice(next)
}

func equalAmount(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func listingPtr(l models.Listing) *models.Listing {
	return &l
}
