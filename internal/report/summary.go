package report

import (
	"github.com/david/market-ledger/internal/models"
)

// Summarize tallies a run. Every configured jurisdiction appears in ByState,
// at zero when nothing was recorded for it; records from other regions are
// not counted there. TotalOpportunities counts lettings plus funding news.
func Summarize(jurisdictions []string, opps []models.Opportunity, news []models.NewsItem) models.Summary {
	s := models.Summary{
		ByState: make(map[string]int, len(jurisdictions)),
	}
	for _, code := range jurisdictions {
		s.ByState[code] = 0
	}

	for _, opp := range opps {
		if opp.CostLow != nil {
			s.TotalValueLow = models.AddAmount(s.TotalValueLow, *opp.CostLow)
		}
		if opp.CostHigh != nil {
			s.TotalValueHigh = models.AddAmount(s.TotalValueHigh, *opp.CostHigh)
		}
		if _, ok := s.ByState[opp.Jurisdiction]; ok {
			s.ByState[opp.Jurisdiction]++
		}
	}
	s.ByCategory.DotLetting = len(opps)

	for _, item := range news {
		if _, ok := s.ByState[item.State]; ok {
			s.ByState[item.State]++
		}
		switch item.Category {
		case models.CategoryFunding:
			s.ByCategory.Funding++
		case models.CategoryNews:
			s.ByCategory.News++
		}
	}

	s.TotalOpportunities = s.ByCategory.DotLetting + s.ByCategory.Funding
	return s
}
