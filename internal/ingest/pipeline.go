package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/david/market-ledger/internal/models"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 20 * 1024 * 1024

// ErrNoRecords is recorded on a Result when every strategy came back empty.
var ErrNoRecords = errors.New("no records extracted")

// hostConfigurer is implemented by fetchers that accept per-host settings.
type hostConfigurer interface {
	Configure(rawURL string, cfg FetchConfig)
}

// Pipeline fetches, decodes, extracts and normalizes one jurisdiction at a time.
type Pipeline struct {
	fetcher      Fetcher
	colly        Fetcher
	factory      *StrategyFactory
	logger       *zap.Logger
	maxBodyBytes int64
}

type PipelineOption func(*Pipeline)

// WithCollyFetcher sets the fetcher used by jurisdictions whose engine is colly.
func WithCollyFetcher(f Fetcher) PipelineOption {
	return func(p *Pipeline) { p.colly = f }
}

func WithLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStrategies replaces the default strategy factory.
func WithStrategies(factory *StrategyFactory) PipelineOption {
	return func(p *Pipeline) {
		if factory != nil {
			p.factory = factory
		}
	}
}

func NewPipeline(fetcher Fetcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fetcher:      fetcher,
		factory:      DefaultStrategyFactory(),
		logger:       zap.NewNop(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = NewRateLimitedFetcher(DefaultFetchConfig(), p.logger)
	}
	return p
}

// Extract never fails. Any fetch, decode or extraction problem yields the
// jurisdiction's stub and is reported on Result.Err.
func (p *Pipeline) Extract(ctx context.Context, j JurisdictionConfig) (res Result) {
	start := time.Now()
	defer p.recoverStub(j, "ingest.Pipeline.Extract", &res)

	body, err := p.fetch(ctx, j)
	if err != nil {
		p.logger.Warn("fetch failed, using portal stub",
			zap.String("op", "ingest.Pipeline.Extract"),
			zap.String("jurisdiction", j.Code),
			zap.String("url", j.BidURL),
			zap.Error(err))
		res = stubResult(j, err)
		res.Duration = time.Since(start)
		return res
	}

	res = p.ExtractContent(j, body)
	res.Duration = time.Since(start)
	return res
}

// recoverStub turns a panic into the jurisdiction's stub result.
func (p *Pipeline) recoverStub(j JurisdictionConfig, op string, res *Result) {
	if recovered := recover(); recovered != nil {
		err := fmt.Errorf("extraction panic: %v", recovered)
		p.logger.Error("extraction panicked",
			zap.String("op", op),
			zap.String("jurisdiction", j.Code),
			zap.Error(err))
		*res = stubResult(j, err)
	}
}

func (p *Pipeline) fetch(ctx context.Context, j JurisdictionConfig) ([]byte, error) {
	fetcher := p.fetcher
	if j.Engine == "colly" && p.colly != nil {
		fetcher = p.colly
	}
	if hc, ok := fetcher.(hostConfigurer); ok {
		hc.Configure(j.BidURL, j.Fetch)
	}

	doc, err := fetcher.Fetch(ctx, j.BidURL)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Body == nil {
		return nil, errors.New("fetch returned no body")
	}
	defer doc.Body.Close()

	body, err := io.ReadAll(io.LimitReader(doc.Body, p.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ExtractContent runs decode, the strategy chain and normalization over an
// already fetched document.
func (p *Pipeline) ExtractContent(j JurisdictionConfig, body []byte) (res Result) {
	defer p.recoverStub(j, "ingest.Pipeline.ExtractContent", &res)

	content, err := Decode(j.Format, body, j.Extraction.Sheet)
	if err != nil {
		p.logger.Warn("decode failed, using portal stub",
			zap.String("jurisdiction", j.Code),
			zap.String("format", string(j.Format)),
			zap.Error(err))
		return stubResult(j, err)
	}
	if content.Empty() {
		return stubResult(j, ErrNoRecords)
	}

	chain, err := NewChain(p.factory, j.Extraction.Strategies, j.Extraction.MaxRecords, p.logger)
	if err != nil {
		return stubResult(j, err)
	}
	raws, strategy := chain.Run(content, j)
	if len(raws) == 0 {
		p.logger.Info("no records extracted, using portal stub",
			zap.String("jurisdiction", j.Code),
			zap.Strings("strategies", j.Extraction.Strategies))
		return stubResult(j, ErrNoRecords)
	}

	normalizer := NewNormalizer(j)
	opps := make([]models.Opportunity, 0, len(raws))
	for _, raw := range raws {
		opps = append(opps, normalizer.Normalize(raw))
	}

	p.logger.Info("jurisdiction extracted",
		zap.String("jurisdiction", j.Code),
		zap.String("strategy", strategy),
		zap.Int("records", len(opps)))

	return Result{
		Jurisdiction:  j.Code,
		Opportunities: opps,
		Strategy:      strategy,
	}
}

func stubResult(j JurisdictionConfig, err error) Result {
	return Result{
		Jurisdiction:  j.Code,
		Opportunities: []models.Opportunity{Stub(j)},
		Strategy:      StubStrategy,
		Fallback:      true,
		Err:           err,
	}
}
