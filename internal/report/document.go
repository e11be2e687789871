package report

import (
	"time"

	"github.com/david/market-ledger/internal/models"
)

// Build assembles the output document from copies of its inputs. Nil slices
// are emitted as empty arrays and the timestamp is rendered in UTC with a trailing Z.
func Build(generated time.Time, jurisdictions []string, opps []models.Opportunity, news []models.NewsItem, health models.MarketHealth) models.Document {
	lettings := make([]models.Opportunity, len(opps))
	copy(lettings, opps)
	for i := range lettings {
		if lettings[i].BusinessLines == nil {
			lettings[i].BusinessLines = []string{}
		}
	}

	items := make([]models.NewsItem, len(news))
	copy(items, news)
	for i := range items {
		if items[i].BusinessLines == nil {
			items[i].BusinessLines = []string{}
		}
	}

	if health.Metrics == nil {
		health.Metrics = map[string]models.MetricResult{}
	}

	return models.Document{
		Generated:    generated.UTC().Format(time.RFC3339),
		Summary:      Summarize(jurisdictions, lettings, items),
		DotLettings:  lettings,
		News:         items,
		MarketHealth: health,
	}
}
