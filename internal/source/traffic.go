package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sitereport/sitereport/internal/model"
)

const dailyTrafficQuery = `query DailyTraffic($zoneTag: string, $from: Date, $to: Date) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      httpRequests1dGroups(limit: 100, filter: {date_geq: $from, date_leq: $to}, orderBy: [date_ASC]) {
        dimensions { date }
        sum { requests bytes }
        uniq { uniques }
      }
    }
  }
}`

const topPathsQuery = `query TopPaths($zoneTag: string, $from: Time, $until: Time, $limit: Int) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      httpRequestsAdaptiveGroups(limit: $limit, filter: {datetime_geq: $from, datetime_lt: $until}, orderBy: [count_DESC]) {
        count
        dimensions { clientRequestPath }
      }
    }
  }
}`

type dailyGroup struct {
	Dimensions struct {
		Date string `json:"date"`
	} `json:"dimensions"`
	Sum struct {
		Requests int64 `json:"requests"`
		Bytes    int64 `json:"bytes"`
	} `json:"sum"`
	Uniq struct {
		Uniques int64 `json:"uniques"`
	} `json:"uniq"`
}

type dailyZone struct {
	Groups []dailyGroup `json:"httpRequests1dGroups"`
}

type pathGroup struct {
	Count      int64 `json:"count"`
	Dimensions struct {
		Path string `json:"clientRequestPath"`
	} `json:"dimensions"`
}

type pathZone struct {
	Groups []pathGroup `json:"httpRequestsAdaptiveGroups"`
}

// TrafficAdapter reads zone traffic from the analytics API.
type TrafficAdapter struct {
	gql *GraphQLClient
}

// NewTrafficAdapter creates a TrafficAdapter.
func NewTrafficAdapter(gql *GraphQLClient) *TrafficAdapter {
	return &TrafficAdapter{gql: gql}
}

// Daily returns day-granular traffic for the inclusive date range, sorted by
// date ascending with at most one point per date. Days without data are absent.
func (a *TrafficAdapter) Daily(ctx context.Context, zoneID string, r model.DateRange) ([]model.DailyTrafficPoint, error) {
	var env zonesEnvelope[dailyZone]
	vars := map[string]any{"zoneTag": zoneID, "from": r.From, "to": r.To}
	if err := a.gql.Query(ctx, dailyTrafficQuery, vars, &env); err != nil {
		return nil, fmt.Errorf("daily traffic %s..%s: %w", r.From, r.To, err)
	}
	zone, err := firstZone(env, zoneID)
	if err != nil {
		return nil, err
	}
	return normalizeDaily(zone.Groups, r)
}

// normalizeDaily parses, range-filters, merges and sorts upstream rows.
func normalizeDaily(groups []dailyGroup, r model.DateRange) ([]model.DailyTrafficPoint, error) {
	byDate := make(map[string]*model.DailyTrafficPoint, len(groups))
	for _, g := range groups {
		day := g.Dimensions.Date
		if day < r.From || day > r.To {
			continue
		}
		date, err := time.Parse(model.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q: %v", ErrUpstream, day, err)
		}
		p, ok := byDate[day]
		if !ok {
			p = &model.DailyTrafficPoint{Date: date}
			byDate[day] = p
		}
		p.Requests += g.Sum.Requests
		p.Bytes += g.Sum.Bytes
		p.Uniques += g.Uniq.Uniques
	}

	points := make([]model.DailyTrafficPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// TopPaths returns the most requested paths in the datetime range.
func (a *TrafficAdapter) TopPaths(ctx context.Context, zoneID string, r model.DateTimeRange, limit int) ([]model.PathCount, error) {
	var env zonesEnvelope[pathZone]
	vars := map[string]any{"zoneTag": zoneID, "from": r.From, "until": r.Until, "limit": limit}
	if err := a.gql.Query(ctx, topPathsQuery, vars, &env); err != nil {
		return nil, fmt.Errorf("top paths: %w", err)
	}
	zone, err := firstZone(env, zoneID)
	if err != nil {
		return nil, err
	}

	paths := make([]model.PathCount, 0, len(zone.Groups))
	for _, g := range zone.Groups {
		paths = append(paths, model.PathCount{Path: g.Dimensions.Path, Requests: g.Count})
	}
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Requests > paths[j].Requests })
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}
