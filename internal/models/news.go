package models

// News categories.
const (
	CategoryNews    = "news"
	CategoryFunding = "funding"
)

// NewsItem is a construction-relevant article produced by the news collaborator.
type NewsItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	URL           string   `json:"url"`
	Source        string   `json:"source"`
	State         string   `json:"state"`
	Date          string   `json:"date"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	BusinessLines []string `json:"business_lines"`
}
