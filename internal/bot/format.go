package bot

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
)

// FormatDigest renders a change set as a plain text message. At most maxItems
// changes are listed, highest category first.
func FormatDigest(changes []models.ChangeRecord, maxItems int) string {
	ordered := slices.Clone(changes)
	slices.SortStableFunc(ordered, func(a, b models.ChangeRecord) int {
		return b.Category.Rank() - a.Category.Rank()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d listing change(s) detected\n", len(changes))

	for i, c := range ordered {
		if maxItems > 0 && i == maxItems {
			fmt.Fprintf(&b, "\n...and %d more", len(ordered)-maxItems)
			break
		}
		b.WriteString("\n")
		b.WriteString(formatChange(c))
	}

	return b.String()
}

// FormatRun renders a scan run for /status.
func FormatRun(run *models.ScanRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scan %s: %s\n", run.ID, run.Status)
	fmt.Fprintf(&b, "Target: %s\n", run.Target)
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(&b, "Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Pages: %d/%d fetched, %d failed\n", run.PagesFetched, run.PagesRequested, run.FetchErrors)
	fmt.Fprintf(&b, "Listings: %d observed, %d malformed\n", run.ListingsObserved, run.ParseErrors)
	fmt.Fprintf(&b, "Changes: %d", run.ChangeCount)
	if run.Error != nil {
		fmt.Fprintf(&b, "\nError: %s", *run.Error)
	}

	return b.String()
}

func formatChange(c models.ChangeRecord) string {
	l := c.After
	if l == nil {
		l = c.Before
	}

	title := c.ListingID
	if l != nil && l.Title != "" {
		title = fmt.Sprintf("%s (%s)", l.Title, c.ListingID)
	}

	line := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(c.Category)), c.ChangeType, title)

	switch {
	case c.ChangeType == models.ChangePriceChanged && c.Before != nil && c.After != nil:
		line += fmt.Sprintf(", price %s -> %s", amount(c.Before.AskingPrice), amount(c.After.AskingPrice))
	case l != nil && l.AskingPrice != nil:
		line += ", price " + amount(l.AskingPrice)
	}

	if l != nil && l.URL != "" {
		line += "\n" + l.URL
	}
	return line
}

func amount(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
