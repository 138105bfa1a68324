// Package report renders the weekly digest of deals sighted in the current
// week and persists it alongside prior weeks.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/model"
)

// Store is the slice of the ingest store the generator needs.
type Store interface {
	DealsSeenBetween(ctx context.Context, from, to time.Time, limit int) ([]model.Deal, error)
	UpsertWeeklyReport(ctx context.Context, report model.WeeklyReport) error
}

// WeekStart returns the Monday 00:00 UTC boundary of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// Generator builds and stores weekly digests.
type Generator struct {
	store Store
	topN  int
}

// NewGenerator creates a digest generator. topN caps the number of deals
// listed per topic.
func NewGenerator(store Store, topN int) *Generator {
	if topN <= 0 {
		topN = 15
	}
	return &Generator{store: store, topN: topN}
}

// Generate renders the digest for the week containing now and upserts it
// under that week's Monday. Running it twice in one week replaces the
// markdown rather than adding a second row.
func (g *Generator) Generate(ctx context.Context, now time.Time) (*model.WeeklyReport, error) {
	weekStart := WeekStart(now)
	weekEnd := weekStart.AddDate(0, 0, 7)

	deals, err := g.store.DealsSeenBetween(ctx, weekStart, weekEnd, 1000)
	if err != nil {
		return nil, eris.Wrap(err, "report: list deals for week")
	}

	report := &model.WeeklyReport{
		WeekStart: weekStart,
		Markdown:  g.render(weekStart, deals),
	}
	if err := g.store.UpsertWeeklyReport(ctx, *report); err != nil {
		return nil, eris.Wrap(err, "report: upsert weekly report")
	}

	zap.L().Info("weekly report generated",
		zap.Time("week_start", weekStart),
		zap.Int("deals", len(deals)),
	)
	return report, nil
}

func (g *Generator) render(weekStart time.Time, deals []model.Deal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Deal Radar: week of %s\n\n", weekStart.Format("January 2, 2006"))

	if len(deals) == 0 {
		b.WriteString("No deals sighted this week.\n")
		return b.String()
	}

	byTopic := map[string][]model.Deal{}
	for _, d := range deals {
		byTopic[d.Topic] = append(byTopic[d.Topic], d)
	}

	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	fmt.Fprintf(&b, "%d deals across %d topics.\n", len(deals), len(topics))

	for _, topic := range topics {
		group := byTopic[topic]
		sort.Slice(group, func(i, j int) bool {
			if group[i].SeenCount != group[j].SeenCount {
				return group[i].SeenCount > group[j].SeenCount
			}
			return group[i].LastSeenAt.After(group[j].LastSeenAt)
		})

		fmt.Fprintf(&b, "\n## %s\n\n", topic)
		shown := group
		if len(shown) > g.topN {
			shown = shown[:g.topN]
		}
		for _, d := range shown {
			fmt.Fprintf(&b, "- **%s** ([link](%s))", d.CanonicalName, d.URL)
			if d.OneLiner != "" {
				fmt.Fprintf(&b, " %s", d.OneLiner)
			}
			fmt.Fprintf(&b, " _seen %dx_\n", d.SeenCount)
		}
		if len(group) > g.topN {
			fmt.Fprintf(&b, "- and %d more\n", len(group)-g.topN)
		}
	}
	return b.String()
}
