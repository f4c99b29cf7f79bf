package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sitereport/sitereport/internal/model"
)

// maxOpportunities caps the ranked improvement list per device.
const maxOpportunities = 5

// probeConcurrency bounds in-flight probes within one performance fetch.
const probeConcurrency = 2

var lighthouseCategories = []string{"PERFORMANCE", "ACCESSIBILITY", "BEST_PRACTICES", "SEO"}

type lighthouseScore struct {
	Score *float64 `json:"score"`
}

type lighthouseAudit struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	NumericValue *float64 `json:"numericValue"`
	Details      *struct {
		Type             string  `json:"type"`
		OverallSavingsMs float64 `json:"overallSavingsMs"`
	} `json:"details"`
}

type pageSpeedResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance   *lighthouseScore `json:"performance"`
			Accessibility *lighthouseScore `json:"accessibility"`
			BestPractices *lighthouseScore `json:"best-practices"`
			SEO           *lighthouseScore `json:"seo"`
		} `json:"categories"`
		Audits map[string]lighthouseAudit `json:"audits"`
	} `json:"lighthouseResult"`
}

// PerformanceResult is the outcome of probing a URL set.
type PerformanceResult struct {
	Results  []model.PageSpeedResult
	Warnings []string
}

// PerformanceAdapter probes URLs with the PageSpeed API. With Detailed set it
// also extracts web vitals and ranked improvement opportunities.
type PerformanceAdapter struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	Detailed bool
}

// NewPerformanceAdapter creates a PerformanceAdapter pacing probes at rps
// requests per second (unlimited when rps <= 0).
func NewPerformanceAdapter(endpoint, apiKey string, client *http.Client, rps float64, detailed bool) *PerformanceAdapter {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &PerformanceAdapter{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     client,
		limiter:  rate.NewLimiter(limit, 1),
		Detailed: detailed,
	}
}

// Fetch probes every URL once per device. A failed probe yields null scores for
// that device only and one warning naming the URL and device. Results keep the
// input order. Rejected credentials are not isolated: the first ErrAuth cancels
// the remaining probes and is returned.
func (a *PerformanceAdapter) Fetch(ctx context.Context, urls []string) (PerformanceResult, error) {
	results := make([]model.PageSpeedResult, len(urls))
	failures := make([][]error, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, u := range urls {
		results[i].URL = u
		failures[i] = make([]error, len(model.Devices))
		for d, device := range model.Devices {
			g.Go(func() error {
				scores, err := a.Probe(gctx, u, device)
				if errors.Is(err, ErrAuth) {
					return fmt.Errorf("%s probe for %s: %w", device, u, err)
				}
				if err != nil {
					failures[i][d] = err
					return nil
				}
				if device == model.DeviceMobile {
					results[i].Mobile = scores
				} else {
					results[i].Desktop = scores
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return PerformanceResult{}, err
	}

	var warnings []string
	for i, u := range urls {
		for d, device := range model.Devices {
			if err := failures[i][d]; err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %s probe failed for %s: %v", NamePerformance, device, u, err))
			}
		}
	}
	return PerformanceResult{Results: results, Warnings: warnings}, nil
}

// Probe runs one PageSpeed analysis for a URL and device.
func (a *PerformanceAdapter) Probe(ctx context.Context, target string, device model.Device) (model.DeviceScores, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return model.DeviceScores{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	q := url.Values{}
	q.Set("url", target)
	q.Set("strategy", string(device))
	for _, c := range lighthouseCategories {
		q.Add("category", c)
	}
	if a.apiKey != "" {
		q.Set("key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.DeviceScores{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := a.http.Do(req)
	if err != nil {
		return model.DeviceScores{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		kind := ErrUpstream
		if isAuthStatus(resp.StatusCode) {
			kind = ErrAuth
		}
		return model.DeviceScores{}, fmt.Errorf("%w: HTTP %d: %s", kind, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body pageSpeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.DeviceScores{}, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return a.scores(body), nil
}

func (a *PerformanceAdapter) scores(body pageSpeedResponse) model.DeviceScores {
	cats := body.LighthouseResult.Categories
	scores := model.DeviceScores{
		Performance:   NormalizeScore(scoreOf(cats.Performance)),
		Accessibility: NormalizeScore(scoreOf(cats.Accessibility)),
		BestPractices: NormalizeScore(scoreOf(cats.BestPractices)),
		SEO:           NormalizeScore(scoreOf(cats.SEO)),
	}
	if !a.Detailed {
		return scores
	}

	audits := body.LighthouseResult.Audits
	scores.Vitals = &model.WebVitals{
		LargestContentfulPaintMs: numericAudit(audits, "largest-contentful-paint"),
		FirstContentfulPaintMs:   numericAudit(audits, "first-contentful-paint"),
		TotalBlockingTimeMs:      numericAudit(audits, "total-blocking-time"),
		CumulativeLayoutShift:    numericAudit(audits, "cumulative-layout-shift"),
		SpeedIndexMs:             numericAudit(audits, "speed-index"),
	}
	scores.Opportunities = opportunities(audits)
	return scores
}

func scoreOf(s *lighthouseScore) *float64 {
	if s == nil {
		return nil
	}
	return s.Score
}

// NormalizeScore converts a raw score on either a 0-1 or a 0-100 scale into an
// integer 0-100. Values up to and including 1 are treated as fractions, so a
// raw 1 is a full score of 100 rather than 1 on the percent scale.
func NormalizeScore(raw *float64) *int {
	if raw == nil || math.IsNaN(*raw) {
		return nil
	}
	v := *raw
	if v <= 1 {
		v *= 100
	}
	n := int(math.Round(v))
	n = max(0, min(100, n))
	return &n
}

func numericAudit(audits map[string]lighthouseAudit, id string) *float64 {
	a, ok := audits[id]
	if !ok || a.NumericValue == nil {
		return nil
	}
	v := *a.NumericValue
	return &v
}

// opportunities ranks audits of type "opportunity" by savings, descending,
// with audit id as the tie breaker so output is stable.
func opportunities(audits map[string]lighthouseAudit) []model.Opportunity {
	var out []model.Opportunity
	for key, a := range audits {
		if a.Details == nil || a.Details.Type != "opportunity" || a.Details.OverallSavingsMs <= 0 {
			continue
		}
		id := a.ID
		if id == "" {
			id = key
		}
		out = append(out, model.Opportunity{ID: id, Title: a.Title, SavingsMs: a.Details.OverallSavingsMs})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SavingsMs != out[j].SavingsMs {
			return out[i].SavingsMs > out[j].SavingsMs
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > maxOpportunities {
		out = out[:maxOpportunities]
	}
	return out
}
