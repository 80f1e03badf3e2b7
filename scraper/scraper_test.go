package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-members/config"
	"github.com/aluiziolira/go-scrape-members/models"
	"github.com/aluiziolira/go-scrape-members/pipeline"
)

type collectingWriter struct {
	mu      sync.Mutex
	members []*models.Member
}

func (cw *collectingWriter) Write(members []*models.Member) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.members = append(cw.members, members...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) All() []*models.Member {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]*models.Member, len(cw.members))
	copy(out, cw.members)
	return out
}

func newTestScraper(t *testing.T, cfg *config.Config) (*Scraper, *httpmock.MockTransport) {
	t.Helper()
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(htmlResponder("<html><body></body></html>"))
	s.Fetcher().HTTPClient().Transport = transport
	return s, transport
}

func runScraper(t *testing.T, s *Scraper, cfg *config.Config) (*models.ScrapeResult, *collectingWriter, error) {
	t.Helper()
	writer := &collectingWriter{}
	p, err := pipeline.NewPipeline(writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(2)

	result, runErr := s.Run(context.Background(), p)
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}
	return result, writer, runErr
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func listingPage(hrefs ...string) string {
	page := "<html><body>"
	for _, href := range hrefs {
		page += fmt.Sprintf(`<a href=%q>member</a>`, href)
	}
	return page + "</body></html>"
}

func detailPage(name, reg string) string {
	return fmt.Sprintf(`<html><body>
		<h1>%s</h1>
		<ul>
			<li>Reg. No: %s</li>
			<li>Address: Thamel, Kathmandu</li>
			<li>Email: <a href="mailto:info@example.com">mail</a></li>
		</ul>
	</body></html>`, name, reg)
}

func TestScraperRunIntegration(t *testing.T) {
	cfg := testConfig()
	cfg.SectionPaths = []string{"/members", "/associate-members"}
	cfg.DiscoveryWorkers = 2
	cfg.Parallelism = 4

	s, transport := newTestScraper(t, cfg)

	// Acme appears under both sections; it must be scraped exactly once.
	transport.RegisterResponder("GET", `=~^http://example\.test/members(\?l=.*)?$`,
		htmlResponder(listingPage("/members/acme", "/members/beta")))
	transport.RegisterResponder("GET", `=~^http://example\.test/associate-members(\?l=.*)?$`,
		htmlResponder(listingPage("/members/acme", "/members/gamma")))

	transport.RegisterResponder("GET", "http://example.test/members/acme",
		htmlResponder(detailPage("Acme Treks", "100/056")))
	transport.RegisterResponder("GET", "http://example.test/members/beta",
		htmlResponder(detailPage("Beta Expeditions", "200/057")))
	transport.RegisterResponder("GET", "http://example.test/members/gamma",
		htmlResponder(detailPage("Gamma Adventures", "300/058")))

	result, writer, err := runScraper(t, s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Discovered != 3 {
		t.Fatalf("discovered = %d, want 3", result.Discovered)
	}
	if result.TotalScraped != 3 {
		t.Fatalf("scraped = %d, want 3", result.TotalScraped)
	}
	if len(result.FailedURLs) != 0 {
		t.Fatalf("failed urls = %v, want none", result.FailedURLs)
	}

	members := writer.All()
	if len(members) != 3 {
		t.Fatalf("written members = %d, want 3", len(members))
	}

	byURL := make(map[string]*models.Member, len(members))
	for _, m := range members {
		byURL[m.URL] = m
	}
	acme, ok := byURL["http://example.test/members/acme"]
	if !ok {
		t.Fatalf("missing acme record, got %v", byURL)
	}
	if acme.OrganizationName != "Acme Treks" {
		t.Fatalf("organization = %q, want %q", acme.OrganizationName, "Acme Treks")
	}
	if acme.RegistrationNumber != "100/056" {
		t.Fatalf("registration = %q, want %q", acme.RegistrationNumber, "100/056")
	}
	if acme.Email != "info@example.com" {
		t.Fatalf("email = %q, want %q", acme.Email, "info@example.com")
	}
	// The section tag follows discovery completion order, so either
	// section is acceptable for the shared URL.
	if acme.MemberType != "General" && acme.MemberType != "Associate" {
		t.Fatalf("member type = %q, want General or Associate", acme.MemberType)
	}
	if got := byURL["http://example.test/members/beta"].MemberType; got != "General" {
		t.Fatalf("beta member type = %q, want General", got)
	}
	if got := byURL["http://example.test/members/gamma"].MemberType; got != "Associate" {
		t.Fatalf("gamma member type = %q, want Associate", got)
	}
}

func TestScraperNoMembersFound(t *testing.T) {
	cfg := testConfig()
	cfg.SectionPaths = []string{"/members"}
	cfg.DiscoveryWorkers = 2
	cfg.Parallelism = 2

	s, _ := newTestScraper(t, cfg)

	_, writer, err := runScraper(t, s, cfg)
	if err != ErrNoMembersFound {
		t.Fatalf("error = %v, want ErrNoMembersFound", err)
	}
	if got := len(writer.All()); got != 0 {
		t.Fatalf("written members = %d, want 0", got)
	}
}

func TestRetryPassRecoversTransientFailure(t *testing.T) {
	cfg := testConfig()
	cfg.SectionPaths = []string{"/members"}
	cfg.DiscoveryWorkers = 1
	cfg.Parallelism = 2
	cfg.MaxRetries = 1 // single attempt per pass, so the main pass fails

	s, transport := newTestScraper(t, cfg)

	transport.RegisterResponder("GET", `=~^http://example\.test/members(\?l=.*)?$`,
		htmlResponder(listingPage("/members/flaky")))

	var calls int64
	transport.RegisterResponder("GET", "http://example.test/members/flaky",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt64(&calls, 1) == 1 {
				return httpmock.NewStringResponse(500, "boom"), nil
			}
			resp := httpmock.NewStringResponse(200, detailPage("Flaky Treks", "400/059"))
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})

	result, writer, err := runScraper(t, s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Recovered != 1 {
		t.Fatalf("recovered = %d, want 1", result.Recovered)
	}
	if len(result.FailedURLs) != 0 {
		t.Fatalf("failed urls = %v, want none", result.FailedURLs)
	}

	members := writer.All()
	if len(members) != 1 {
		t.Fatalf("written members = %d, want exactly 1", len(members))
	}
	if members[0].OrganizationName != "Flaky Treks" {
		t.Fatalf("organization = %q, want %q", members[0].OrganizationName, "Flaky Treks")
	}
}

func TestRetryExhaustionLogsSingleFailure(t *testing.T) {
	cfg := testConfig()
	cfg.SectionPaths = []string{"/members"}
	cfg.DiscoveryWorkers = 1
	cfg.Parallelism = 2

	s, transport := newTestScraper(t, cfg)

	transport.RegisterResponder("GET", `=~^http://example\.test/members(\?l=.*)?$`,
		htmlResponder(listingPage("/members/down")))
	transport.RegisterResponder("GET", "http://example.test/members/down",
		httpmock.NewStringResponder(500, "boom"))

	result, writer, err := runScraper(t, s, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.TotalScraped != 0 {
		t.Fatalf("scraped = %d, want 0", result.TotalScraped)
	}
	if len(result.FailedURLs) != 1 || result.FailedURLs[0] != "http://example.test/members/down" {
		t.Fatalf("failed urls = %v, want exactly the down URL", result.FailedURLs)
	}
	if got := len(writer.All()); got != 0 {
		t.Fatalf("written members = %d, want 0", got)
	}
	if result.ErrorsByType["http_status"] == 0 {
		t.Fatalf("expected http_status errors, got %v", result.ErrorsByType)
	}
}

func TestCrawlStateVisitedExclusivity(t *testing.T) {
	state := newCrawlState()

	const goroutines = 32
	var wg sync.WaitGroup
	var claimed int64
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if state.markVisited("http://example.test/members/acme") {
				atomic.AddInt64(&claimed, 1)
			}
		}()
	}
	wg.Wait()

	if claimed != 1 {
		t.Fatalf("claimed = %d, want exactly 1", claimed)
	}
}

func TestCrawlStateSectionFirstAssignmentWins(t *testing.T) {
	state := newCrawlState()
	state.tagSection("http://example.test/members/acme", "Regional")
	state.tagSection("http://example.test/members/acme", "General")

	if got := state.sectionFor("http://example.test/members/acme"); got != "Regional" {
		t.Fatalf("section = %q, want Regional", got)
	}
	if got := state.sectionFor("http://example.test/members/unknown"); got != "General" {
		t.Fatalf("untagged section = %q, want the General default", got)
	}
}

func TestCrawlStateDrainFailures(t *testing.T) {
	state := newCrawlState()
	state.addFailure("http://example.test/members/a")
	state.addFailure("http://example.test/members/b")

	drained := state.drainFailures()
	if len(drained) != 2 {
		t.Fatalf("drained = %d, want 2", len(drained))
	}
	if got := state.snapshotFailures(); len(got) != 0 {
		t.Fatalf("failure log not cleared: %v", got)
	}
}

func TestSectionName(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{path: "/members", expected: "General"},
		{path: "/associate-members", expected: "Associate"},
		{path: "/regional-members", expected: "Regional"},
		{path: "/honorary-members", expected: "Honorary Members"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := sectionName(tt.path); got != tt.expected {
				t.Fatalf("sectionName(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
