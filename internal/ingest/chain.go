package ingest

import (
	"fmt"

	"github.com/david/market-ledger/internal/models"
	"go.uber.org/zap"
)

// Chain tries strategies in order and keeps the first non-empty result,
// truncated to the record cap.
type Chain struct {
	strategies []Strategy
	maxRecords int
	logger     *zap.Logger
}

// NewChain resolves strategy names against the factory.
func NewChain(factory *StrategyFactory, names []string, maxRecords int, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := &Chain{maxRecords: maxRecords, logger: logger}
	for _, name := range names {
		s, err := factory.Get(name)
		if err != nil {
			return nil, err
		}
		chain.strategies = append(chain.strategies, s)
	}
	return chain, nil
}

// Run returns the projects found and the name of the strategy that found them.
// An empty result means the caller should fall back to the stub.
func (c *Chain) Run(content Content, j JurisdictionConfig) ([]RawProject, string) {
	for _, s := range c.strategies {
		projects, err := safeExtract(s, content, j)
		if err != nil {
			c.logger.Warn("strategy panicked",
				zap.String("op", "ingest.Chain.Run"),
				zap.String("jurisdiction", j.Code),
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}
		if len(projects) == 0 {
			c.logger.Debug("strategy found nothing",
				zap.String("jurisdiction", j.Code),
				zap.String("strategy", s.Name()))
			continue
		}
		if c.maxRecords > 0 && len(projects) > c.maxRecords {
			projects = projects[:c.maxRecords]
		}
		return projects, s.Name()
	}
	return nil, ""
}

func safeExtract(s Strategy, content Content, j JurisdictionConfig) (projects []RawProject, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			projects = nil
			err = fmt.Errorf("%s strategy panic: %v", s.Name(), recovered)
		}
	}()
	return s.Extract(content, j), nil
}

// StubStrategy names results that came from the portal placeholder.
const StubStrategy = "stub"

// Stub is the single placeholder a jurisdiction contributes when nothing could
// be extracted. It points at the human-browsable portal.
func Stub(j JurisdictionConfig) models.Opportunity {
	return models.Opportunity{
		ID:            HashID(j.Code + "-portal-ref"),
		Jurisdiction:  j.Code,
		Description:   fmt.Sprintf("%s Bid Schedule - Visit portal for current lettings", j.Name),
		CostDisplay:   models.CostDisplayPortal,
		URL:           j.PortalURL,
		Source:        j.Name,
		BusinessLines: []string{LineHighway},
	}
}
