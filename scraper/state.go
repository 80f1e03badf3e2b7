package scraper

import (
	"sync"
	"time"
)

// crawlState is the single mutual-exclusion domain shared by all workers:
// the visited set, the failure log, the URL-to-section tags, the error
// counts, and the progress counter. The lock is held only for the minimal
// check-then-act or append, never across a network call.
type crawlState struct {
	mu       sync.Mutex
	visited  map[string]struct{}
	failed   []string
	sections map[string]string
	errors   map[string]int
	progress int
	start    time.Time
}

func newCrawlState() *crawlState {
	return &crawlState{
		visited:  make(map[string]struct{}),
		sections: make(map[string]string),
		errors:   make(map[string]int),
	}
}

func (cs *crawlState) setStart(t time.Time) {
	cs.mu.Lock()
	cs.start = t
	cs.mu.Unlock()
}

// markVisited inserts a URL into the visited set, reporting whether this
// caller claimed it. The set only grows within a run; retried URLs stay
// visited and the retry pass bypasses this check.
func (cs *crawlState) markVisited(url string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.visited[url]; ok {
		return false
	}
	cs.visited[url] = struct{}{}
	return true
}

// tagSection records the member type a URL was discovered under. First
// assignment wins; with concurrent discovery tasks that is completion
// order, an accepted non-determinism.
func (cs *crawlState) tagSection(url, section string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.sections[url]; ok {
		return
	}
	cs.sections[url] = section
}

func (cs *crawlState) sectionFor(url string) string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if section, ok := cs.sections[url]; ok {
		return section
	}
	return "General"
}

func (cs *crawlState) addFailure(url string) {
	cs.mu.Lock()
	cs.failed = append(cs.failed, url)
	cs.mu.Unlock()
}

// drainFailures copies then clears the failure log so the retry pass only
// captures fresh failures.
func (cs *crawlState) drainFailures() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := cs.failed
	cs.failed = nil
	return out
}

func (cs *crawlState) snapshotFailures() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, len(cs.failed))
	copy(out, cs.failed)
	return out
}

func (cs *crawlState) countError(label string) {
	cs.mu.Lock()
	cs.errors[label]++
	cs.mu.Unlock()
}

func (cs *crawlState) snapshotErrors() map[string]int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make(map[string]int, len(cs.errors))
	for k, v := range cs.errors {
		out[k] = v
	}
	return out
}

// advance bumps the progress counter and returns it with the elapsed run
// time, so progress reporting is never ahead of stored results.
func (cs *crawlState) advance() (int, time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.progress++
	return cs.progress, time.Since(cs.start)
}

func (cs *crawlState) progressCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.progress
}
