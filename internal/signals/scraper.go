package signals

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/store"
	"leverage-agent/internal/types"
)

// fileCap bounds how many records the signal file retains.
const fileCap = 100

// Source defines one scraped news source.
type Source struct {
	Name      string
	URL       string
	Selectors ArticleSelectors
	RateLimit time.Duration
}

// ArticleSelectors are the CSS selectors extracting headline data.
type ArticleSelectors struct {
	ArticleContainer string
	Title            string
	Summary          string
}

// defaultSources lists crypto news feeds worth skimming for headlines.
func defaultSources() []Source {
	return []Source{
		{
			Name: "CoinDesk",
			URL:  "https://www.coindesk.com/markets/",
			Selectors: ArticleSelectors{
				ArticleContainer: "div.article-card",
				Title:            "h2 a, h3 a",
				Summary:          "p",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name: "CoinTelegraph",
			URL:  "https://cointelegraph.com/category/market-analysis",
			Selectors: ArticleSelectors{
				ArticleContainer: "article",
				Title:            "span.post-card-inline__title, h2",
				Summary:          "p.post-card-inline__text",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Scraper periodically harvests headlines into the signal file. It is a
// pure producer; the orchestrator only ever reads the file.
type Scraper struct {
	path    string
	sources []Source
	timeout time.Duration
}

func NewScraper(path string, timeout time.Duration) *Scraper {
	return &Scraper{path: path, sources: defaultSources(), timeout: timeout}
}

// Run scrapes on the given interval until the context is cancelled.
func (s *Scraper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.scrapeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrapeOnce(ctx)
		}
	}
}

func (s *Scraper) scrapeOnce(ctx context.Context) {
	now := time.Now().UTC()
	var harvested []types.Signal
	for _, src := range s.sources {
		sigs, err := s.scrapeSource(ctx, src, now)
		if err != nil {
			logger.Warn(ctx, "Signal source scrape failed", "source", src.Name, "error", err)
			continue
		}
		harvested = append(harvested, sigs...)
	}
	if len(harvested) == 0 {
		return
	}
	if err := s.merge(ctx, harvested); err != nil {
		logger.Warn(ctx, "Failed to write signals file", "path", s.path, "error", err)
		return
	}
	logger.Info(ctx, "Signals harvested", "count", len(harvested))
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, now time.Time) ([]types.Signal, error) {
	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.UserAgent("Mozilla/5.0 (compatible; leverage-agent/1.0)"),
	)
	c.SetRequestTimeout(s.timeout)
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: src.RateLimit})

	var out []types.Signal
	c.OnHTML(src.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		title := textOf(e.DOM, src.Selectors.Title)
		if title == "" {
			return
		}
		out = append(out, types.Signal{
			DiscoveredAt: now,
			Instruction:  "Assess headline impact on open-symbol exposure",
			Source:       src.Name,
			Author:       src.Name,
			RawText:      strings.Join(compact(title, textOf(e.DOM, src.Selectors.Summary)), ": "),
			Impact:       "unknown",
		})
	})

	if err := c.Visit(src.URL); err != nil {
		return nil, err
	}
	c.Wait()
	return out, nil
}

// merge folds new records into the existing file, deduplicates by raw
// text and keeps the newest fileCap entries.
func (s *Scraper) merge(ctx context.Context, fresh []types.Signal) error {
	reader := NewReader(s.path, 24*time.Hour)
	all := append(reader.Recent(ctx, time.Now().UTC()), fresh...)

	seen := make(map[string]bool, len(all))
	var dedup []types.Signal
	for _, sig := range all {
		if seen[sig.RawText] {
			continue
		}
		seen[sig.RawText] = true
		dedup = append(dedup, sig)
	}
	sort.Slice(dedup, func(i, j int) bool { return dedup[i].DiscoveredAt.After(dedup[j].DiscoveredAt) })
	if len(dedup) > fileCap {
		dedup = dedup[:fileCap]
	}

	b, err := json.MarshalIndent(dedup, "", "  ")
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(s.path, b, 0o644)
}

func textOf(dom *goquery.Selection, selector string) string {
	return strings.TrimSpace(dom.Find(selector).First().Text())
}

func compact(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
