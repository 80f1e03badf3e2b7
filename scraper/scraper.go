// Package scraper coordinates the crawl: listing discovery, concurrent
// detail scraping, and a sequential retry pass over failed URLs.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-members/config"
	"github.com/aluiziolira/go-scrape-members/models"
	"github.com/aluiziolira/go-scrape-members/parser"
	"github.com/aluiziolira/go-scrape-members/pipeline"
)

// Scraper runs the two-phase crawl over the member directory.
type Scraper struct {
	cfg     *config.Config
	fetcher *Fetcher
	base    *url.URL
	Metrics *Metrics

	state *crawlState
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	metrics := NewMetrics()
	return &Scraper{
		cfg:     cfg,
		fetcher: NewFetcher(cfg, metrics),
		base:    parsed,
		Metrics: metrics,
		state:   newCrawlState(),
	}, nil
}

// Fetcher returns the underlying fetcher, mainly so tests can install a mock
// transport.
func (s *Scraper) Fetcher() *Fetcher {
	return s.fetcher
}

// Run executes discovery, the concurrent scrape, and the retry pass,
// streaming records into p. A canceled ctx stops dispatching queued work;
// in-flight fetches finish naturally and whatever was scraped stays
// exported.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	s.state.setStart(start)

	urls, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrNoMembersFound
	}

	slog.Info("starting member scrape",
		slog.Int("members", len(urls)),
		slog.Int("workers", s.cfg.Parallelism),
	)
	s.scrape(ctx, urls, p)

	recovered := s.retryFailed(ctx, p)

	result := &models.ScrapeResult{
		StartTime:    start,
		EndTime:      time.Now(),
		Discovered:   len(urls),
		TotalScraped: s.state.progressCount(),
		Recovered:    recovered,
		RequestCount: s.fetcher.Requests(),
		RetryCount:   s.fetcher.Retries(),
		FailedURLs:   s.state.snapshotFailures(),
		ErrorsByType: s.state.snapshotErrors(),
	}
	return result, nil
}

// discover fans the (section x filter) listing pages out over a small worker
// pool and merges the extracted detail URLs in first-seen order.
func (s *Scraper) discover(ctx context.Context) ([]string, error) {
	type listing struct {
		url     string
		section string
		name    string
	}

	slog.Info("collecting member URLs", slog.Int("workers", s.cfg.DiscoveryWorkers))

	tasks := make(chan listing)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []string
	)

	for i := 0; i < s.cfg.DiscoveryWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for l := range tasks {
				if ctx.Err() != nil {
					continue
				}
				urls := s.listingURLs(ctx, l.url)
				if len(urls) == 0 {
					continue
				}
				for _, u := range urls {
					s.state.tagSection(u, l.section)
				}
				mu.Lock()
				all = append(all, urls...)
				mu.Unlock()
				slog.Info("listing page processed",
					slog.String("page", l.name),
					slog.Int("members", len(urls)),
				)
			}
		}()
	}

	for _, path := range s.cfg.SectionPaths {
		section := sectionName(path)
		for _, filter := range config.AlphabetFilters() {
			pageURL := s.cfg.BaseURL + path
			name := section + "-trending"
			if filter != "" {
				pageURL += "?l=" + filter
				name = section + "-" + filter
			}
			tasks <- listing{url: pageURL, section: section, name: name}
		}
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, u := range all {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	slog.Info("total unique member URLs found", slog.Int("count", len(unique)))
	return unique, nil
}

// listingURLs fetches one listing page and extracts its detail URLs.
// Discovery failures are logged and yield an empty set; they never enter the
// failure log.
func (s *Scraper) listingURLs(ctx context.Context, pageURL string) []string {
	s.Metrics.IncRequest("discovery")
	body, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		s.state.countError(errorTypeLabel(err))
		s.Metrics.IncError(errorTypeLabel(err))
		slog.Error("listing page fetch failed",
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.state.countError("parse")
		s.Metrics.IncError("parse")
		slog.Error("listing page parse failed",
			slog.String("url", pageURL),
			slog.Any("error", ErrParse{Err: err}),
		)
		return nil
	}

	return parser.ExtractMemberURLs(doc, s.base)
}

// scrape dispatches one task per discovered URL to the main worker pool.
func (s *Scraper) scrape(ctx context.Context, urls []string, p *pipeline.Pipeline) {
	tasks := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for memberURL := range tasks {
				if ctx.Err() != nil {
					continue
				}
				// Check-then-insert under the shared lock; a URL
				// discovered under two sections is scraped once.
				if !s.state.markVisited(memberURL) {
					continue
				}
				s.processMember(ctx, memberURL, "scrape", p)
			}
		}()
	}

	for _, u := range urls {
		tasks <- u
	}
	close(tasks)
	wg.Wait()
}

// retryFailed drains the failure log and re-runs each URL sequentially.
// Fresh failures repopulate the log for the final report.
func (s *Scraper) retryFailed(ctx context.Context, p *pipeline.Pipeline) int {
	failures := s.state.drainFailures()
	if len(failures) == 0 {
		slog.Info("no failed URLs to retry")
		return 0
	}

	slog.Info("retrying failed URLs", slog.Int("count", len(failures)))
	recovered := 0
	for _, memberURL := range failures {
		if ctx.Err() != nil {
			s.state.addFailure(memberURL)
			continue
		}
		if s.processMember(ctx, memberURL, "retry", p) {
			recovered++
		}
	}
	if recovered > 0 {
		slog.Info("recovered members on retry", slog.Int("count", recovered))
	}
	return recovered
}

// processMember fetches and extracts one detail page, streams the record
// into the pipeline, and advances the progress counter. Failures land in the
// failure log; nothing propagates.
func (s *Scraper) processMember(ctx context.Context, memberURL, phase string, p *pipeline.Pipeline) bool {
	s.Metrics.IncRequest(phase)
	body, err := s.fetcher.Fetch(ctx, memberURL)
	if err != nil {
		s.state.addFailure(memberURL)
		s.state.countError(errorTypeLabel(err))
		s.Metrics.IncError(errorTypeLabel(err))
		slog.Error("member fetch failed",
			slog.String("url", memberURL),
			slog.Any("error", err),
		)
		return false
	}

	member := s.extractMember(memberURL, body)
	if err := parser.ValidateMember(member); err != nil {
		slog.Warn("low quality member data",
			slog.String("url", memberURL),
			slog.Any("error", err),
		)
	}

	s.Metrics.IncMembers()
	if err := p.Process(member); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		slog.Error("pipeline process error", slog.Any("error", err))
	}

	count, elapsed := s.state.advance()
	if count <= 10 || count%50 == 0 {
		rate := 0.0
		if elapsed.Seconds() > 0 {
			rate = float64(count) / elapsed.Seconds()
		}
		slog.Info("scrape progress",
			slog.Int("members", count),
			slog.String("rate", fmt.Sprintf("%.2f members/sec", rate)),
			slog.String("elapsed", fmt.Sprintf("%.1fs", elapsed.Seconds())),
		)
	}
	return true
}

// extractMember parses a detail page body. A body goquery cannot read yields
// an all-placeholder record, mirroring the extractor's own panic handling.
func (s *Scraper) extractMember(memberURL string, body []byte) *models.Member {
	var member *models.Member
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.state.countError("parse")
		s.Metrics.IncError("parse")
		slog.Error("member page parse failed",
			slog.String("url", memberURL),
			slog.Any("error", ErrParse{Err: err}),
		)
		member = models.NewMember()
	} else {
		member = parser.ExtractMember(doc)
	}

	member.URL = memberURL
	member.MemberType = s.state.sectionFor(memberURL)
	member.ScrapedAt = time.Now()
	return member
}

// sectionName derives the member type from a section path segment.
func sectionName(path string) string {
	segment := strings.Trim(path, "/")
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	switch segment {
	case "members":
		return "General"
	case "associate-members":
		return "Associate"
	case "regional-members":
		return "Regional"
	}

	words := strings.Split(strings.ReplaceAll(segment, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
