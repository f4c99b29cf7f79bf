package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitereport/sitereport/internal/model"
)

// SourceAll labels groups fetched without the source dimension.
const SourceAll = "all"

const firewallBySourceQuery = `query FirewallBySource($zoneTag: string, $from: Time, $until: Time) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      firewallEventsAdaptiveGroups(limit: 1000, filter: {datetime_geq: $from, datetime_lt: $until}, orderBy: [count_DESC]) {
        count
        dimensions { source action }
      }
    }
  }
}`

const firewallByActionQuery = `query FirewallByAction($zoneTag: string, $from: Time, $until: Time) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      firewallEventsAdaptiveGroups(limit: 1000, filter: {datetime_geq: $from, datetime_lt: $until}, orderBy: [count_DESC]) {
        count
        dimensions { action }
      }
    }
  }
}`

type firewallGroup struct {
	Count      int64 `json:"count"`
	Dimensions struct {
		Source string `json:"source"`
		Action string `json:"action"`
	} `json:"dimensions"`
}

type firewallZone struct {
	Groups []firewallGroup `json:"firewallEventsAdaptiveGroups"`
}

// SecurityResult is the outcome of a security fetch.
type SecurityResult struct {
	Groups []model.FirewallEventGroup
	// Reduced is set when the source dimension was dropped after a rejection.
	Reduced bool
	// Failure is set when the source degraded to an empty result.
	Failure error
}

// Degraded reports whether the result is an empty stand-in for a failure.
func (r SecurityResult) Degraded() bool {
	return r.Failure != nil
}

// SecurityAdapter reads firewall event counts. It degrades rather than fails:
// only credential rejection is returned as an error.
type SecurityAdapter struct {
	gql *GraphQLClient
}

// NewSecurityAdapter creates a SecurityAdapter.
func NewSecurityAdapter(gql *GraphQLClient) *SecurityAdapter {
	return &SecurityAdapter{gql: gql}
}

// Fetch returns firewall event counts grouped by (source, action). When the
// upstream rejects the source dimension it retries once grouped by action only.
func (a *SecurityAdapter) Fetch(ctx context.Context, zoneID string, r model.DateTimeRange) (SecurityResult, error) {
	groups, err := a.query(ctx, firewallBySourceQuery, zoneID, r)
	if err == nil {
		return SecurityResult{Groups: groups}, nil
	}
	if errors.Is(err, ErrAuth) {
		return SecurityResult{}, err
	}
	if !errors.Is(err, ErrQueryRejected) {
		return SecurityResult{Failure: err}, nil
	}

	groups, retryErr := a.query(ctx, firewallByActionQuery, zoneID, r)
	if retryErr == nil {
		return SecurityResult{Groups: groups, Reduced: true}, nil
	}
	if errors.Is(retryErr, ErrAuth) {
		return SecurityResult{}, retryErr
	}
	return SecurityResult{Failure: fmt.Errorf("%w (after dimension fallback: %v)", retryErr, err)}, nil
}

func (a *SecurityAdapter) query(ctx context.Context, query, zoneID string, r model.DateTimeRange) ([]model.FirewallEventGroup, error) {
	var env zonesEnvelope[firewallZone]
	vars := map[string]any{"zoneTag": zoneID, "from": r.From, "until": r.Until}
	if err := a.gql.Query(ctx, query, vars, &env); err != nil {
		return nil, fmt.Errorf("firewall events: %w", err)
	}
	zone, err := firstZone(env, zoneID)
	if err != nil {
		return nil, err
	}

	groups := make([]model.FirewallEventGroup, 0, len(zone.Groups))
	for _, g := range zone.Groups {
		src := g.Dimensions.Source
		if src == "" {
			src = SourceAll
		}
		groups = append(groups, model.FirewallEventGroup{
			Source: src,
			Action: g.Dimensions.Action,
			Count:  g.Count,
		})
	}
	return groups, nil
}
