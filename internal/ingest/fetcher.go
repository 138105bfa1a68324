// Package ingest runs the scan pipeline: fan out topic queries to the search
// provider, normalize the hits, and fold them into the radar_items log and
// the deals table.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/deal-radar/internal/model"
	"github.com/sells-group/deal-radar/internal/monitoring"
	"github.com/sells-group/deal-radar/internal/resilience"
	"github.com/sells-group/deal-radar/pkg/serper"
)

// Hit is one raw search result tagged with the topic and query that produced
// it.
type Hit struct {
	URL     string
	Title   string
	Snippet string
	Source  string
	Topic   string
	Query   string
}

// FetcherConfig tunes the query fan-out.
type FetcherConfig struct {
	Concurrency     int
	QueryTimeout    time.Duration
	MaxRetries      int
	RatePerSec      float64
	Country         string
	Language        string
	ResultsPerQuery int
}

// Fetcher runs every query of every topic against the search provider.
type Fetcher struct {
	client  serper.Client
	cfg     FetcherConfig
	limiter *rate.Limiter
}

// NewFetcher creates a fetcher with bounded concurrency and a shared rate
// limiter across all workers.
func NewFetcher(client serper.Client, cfg FetcherConfig) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 10
	}
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

// Fetch runs all queries and returns the collected hits. A failed query is
// counted and logged but never aborts the others; only context cancellation
// stops the fan-out early.
func (f *Fetcher) Fetch(ctx context.Context, topics []model.Topic, stats *monitoring.RunStats) []Hit {
	log := zap.L().With(zap.String("component", "ingest.fetcher"))

	var mu sync.Mutex
	var hits []Hit

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	for _, topic := range topics {
		for _, query := range topic.Queries {
			topic, query := topic, query
			g.Go(func() error {
				if err := f.limiter.Wait(gCtx); err != nil {
					return err
				}

				resp, err := f.search(gCtx, query)
				if err != nil {
					if gCtx.Err() != nil {
						return gCtx.Err()
					}
					stats.IncErrors()
					log.Warn("query failed",
						zap.String("topic", topic.Name),
						zap.String("query", query),
						zap.Error(err),
					)
					return nil
				}

				stats.AddFetched(len(resp.Organic))
				mu.Lock()
				for _, r := range resp.Organic {
					hits = append(hits, Hit{
						URL:     r.Link,
						Title:   r.Title,
						Snippet: r.Snippet,
						Source:  r.Source,
						Topic:   topic.Name,
						Query:   query,
					})
				}
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		log.Warn("fetch fan-out cancelled", zap.Error(err))
	}
	return hits
}

func (f *Fetcher) search(ctx context.Context, query string) (*serper.SearchResponse, error) {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = f.cfg.MaxRetries
	retryCfg.ShouldRetry = func(err error) bool {
		var apiErr *serper.APIError
		if errors.As(err, &apiErr) {
			return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
		}
		return resilience.IsTransient(err)
	}
	retryCfg.OnRetry = resilience.RetryLogger("serper", "search")

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*serper.SearchResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.QueryTimeout)
		defer cancel()
		return f.client.Search(callCtx, serper.SearchRequest{
			Query:      query,
			Country:    f.cfg.Country,
			Language:   f.cfg.Language,
			NumResults: f.cfg.ResultsPerQuery,
		})
	})
}
