package rulestat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/axiomhq/hyperloglog"
)

// uploadTimeout is the timeout of the upload requests.
const uploadTimeout = 30 * time.Second

// ruleStat is the statistics of a single rule.
type ruleStat struct {
	// hosts is the estimate of the distinct hostnames of the requests the rule
	// was applied to.
	hosts *hyperloglog.Sketch

	// tabs is the estimate of the distinct tabs the rule was applied in.
	tabs *hyperloglog.Sketch

	hits uint64
}

// statsSet is an alias for the stats set type.
type statsSet = map[filter.ListID]map[filter.RuleText]*ruleStat

// Collector is the filtering rule statistics collector, which keeps the
// statistics in memory and uploads them to a URL, if there is one, when it's
// refreshed.
type Collector struct {
	logger  *slog.Logger
	metrics Metrics
	url     *url.URL
	http    *advhttp.Client

	// mu protects stats and recordedHits.
	mu           *sync.Mutex
	stats        statsSet
	recordedHits int64
}

// Config is the configuration structure for the filtering rule statistics
// collector.
type Config struct {
	// Logger is used to log the uploads.  It must not be nil.
	Logger *slog.Logger

	// Metrics is used for the collection of the statistics metrics.  It must
	// not be nil.
	Metrics Metrics

	// URL is the URL to which the statistics is uploaded.  If it's nil, the
	// statistics is only kept in memory.
	URL *url.URL
}

// New returns a new statistics collector.  c must not be nil.
func New(c *Config) (s *Collector) {
	s = &Collector{
		logger:  c.Logger,
		metrics: c.Metrics,
		mu:      &sync.Mutex{},
		stats:   statsSet{},
		http: advhttp.NewClient(&advhttp.ClientConfig{
			Timeout: uploadTimeout,
		}),
	}

	if c.URL != nil {
		s.url = netutil.CloneURL(c.URL)
	}

	return s
}

// type check
var _ Interface = (*Collector)(nil)

// Collect implements the [Interface] interface for *Collector.
func (s *Collector) Collect(ctx context.Context, hit *Hit) {
	host := filter.ExtractHostname(hit.URL)
	tab := fmt.Appendf(nil, "%d", hit.TabID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordedHits++
	s.metrics.SetPendingHits(ctx, s.recordedHits)

	rules := s.stats[hit.ListID]
	if rules == nil {
		rules = map[filter.RuleText]*ruleStat{}
		s.stats[hit.ListID] = rules
	}

	st := rules[hit.Rule]
	if st == nil {
		st = &ruleStat{
			hosts: hyperloglog.New(),
			tabs:  hyperloglog.New(),
		}
		rules[hit.Rule] = st
	}

	st.hits++
	st.hosts.Insert([]byte(host))
	st.tabs.Insert(tab)
}

// RuleStat is the statistics of a single rule.
type RuleStat struct {
	// Rule is the text of the rule.
	Rule filter.RuleText `json:"rule"`

	// Hits is the number of hits of the rule.
	Hits uint64 `json:"hits"`

	// Hosts is the approximate number of the distinct hostnames.
	Hosts uint64 `json:"hosts"`

	// Tabs is the approximate number of the distinct tabs.
	Tabs uint64 `json:"tabs"`

	// ListID is the ID of the list of the rule.
	ListID filter.ListID `json:"list_id"`
}

// Stats returns the statistics collected since the last upload sorted by the
// number of hits in descending order.
func (s *Collector) Stats() (stats []*RuleStat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rules := range s.stats {
		for text, st := range rules {
			stats = append(stats, &RuleStat{
				Rule:   text,
				Hits:   st.hits,
				Hosts:  st.hosts.Estimate(),
				Tabs:   st.tabs.Estimate(),
				ListID: id,
			})
		}
	}

	slices.SortFunc(stats, func(a, b *RuleStat) (res int) {
		if a.Hits != b.Hits {
			return -compareUint(a.Hits, b.Hits)
		} else if a.ListID != b.ListID {
			return int(a.ListID - b.ListID)
		}

		return strings.Compare(string(a.Rule), string(b.Rule))
	})

	return stats
}

// compareUint returns -1, 0, or 1 if a is less, equal, or greater than b.
func compareUint(a, b uint64) (res int) {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// type check
var _ service.Refresher = (*Collector)(nil)

// Refresh implements the [service.Refresher] interface for *Collector.  It
// uploads the collected statistics to the URL and starts collecting a new set
// of statistics.  If there is no URL, it does nothing.
func (s *Collector) Refresh(ctx context.Context) (err error) {
	if s.url == nil {
		return nil
	}

	n, err := s.upload(ctx)
	s.metrics.ObserveUpload(ctx, n, err)
	s.metrics.SetPendingHits(ctx, s.pendingHits())

	return err
}

// pendingHits returns the number of hits collected since the last upload.
func (s *Collector) pendingHits() (n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordedHits
}

// upload uploads the collected statistics of n rules and resets them.
func (s *Collector) upload(ctx context.Context) (n int, err error) {
	req := &filtersReq{}
	req.Filters, n = s.replaceStats()

	b, err := json.Marshal(req)
	if err != nil {
		return n, fmt.Errorf("encoding filter stats: %w", err)
	}

	httpResp, err := s.http.Post(ctx, s.url, advhttp.HdrValApplicationJSON, bytes.NewReader(b))
	if err != nil {
		return n, fmt.Errorf("uploading filter stats: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, httpResp.Body.Close()) }()

	err = advhttp.CheckStatus(httpResp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return n, err
	}

	s.logger.DebugContext(ctx, "uploaded filter stats", "lists", len(req.Filters), "rules", n)

	return n, nil
}

// replaceStats replaces the current stats of s with a new set and returns the
// hit counts of the previous one along with the number of rules in it.
func (s *Collector) replaceStats() (prev map[filter.ListID]map[filter.RuleText]uint64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = make(map[filter.ListID]map[filter.RuleText]uint64, len(s.stats))
	for id, rules := range s.stats {
		counts := make(map[filter.RuleText]uint64, len(rules))
		for text, st := range rules {
			counts[text] = st.hits
		}

		n += len(counts)

		prev[id] = counts
	}

	s.stats = statsSet{}
	s.recordedHits = 0

	return prev, n
}

// filtersReq is the JSON filtering rule list statistics request structure.
type filtersReq struct {
	Filters map[filter.ListID]map[filter.RuleText]uint64 `json:"filters"`
}
