package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response is read into messages.
const maxErrorBody = 1024

// GraphQLClient posts queries to the analytics GraphQL endpoint.
type GraphQLClient struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewGraphQLClient creates a client authenticating with a bearer token.
func NewGraphQLClient(endpoint, token string, client *http.Client) *GraphQLClient {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	return &GraphQLClient{endpoint: endpoint, token: token, http: client}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query executes a GraphQL query and decodes the data member into out.
// Errors wrap ErrAuth, or ErrUpstream (plus ErrQueryRejected when the server
// answered with GraphQL errors).
func (c *GraphQLClient) Query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if isAuthStatus(resp.StatusCode) {
		return fmt.Errorf("%w: HTTP %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: HTTP %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			if isAuthGraphQLError(e) {
				return fmt.Errorf("%w: %s", ErrAuth, e.Message)
			}
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %w: %s", ErrUpstream, ErrQueryRejected, strings.Join(msgs, "; "))
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("%w: empty data", ErrUpstream)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrUpstream, err)
	}
	return nil
}

func isAuthGraphQLError(e graphQLError) bool {
	switch strings.ToLower(e.Extensions.Code) {
	case "authz", "authn", "unauthorized", "unauthenticated", "forbidden":
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "not authorized")
}

// zonesEnvelope is the shared shape of zone-scoped analytics responses.
type zonesEnvelope[T any] struct {
	Viewer struct {
		Zones []T `json:"zones"`
	} `json:"viewer"`
}

// firstZone returns the single zone of a zone-filtered response.
func firstZone[T any](env zonesEnvelope[T], zoneID string) (T, error) {
	var zero T
	if len(env.Viewer.Zones) == 0 {
		return zero, fmt.Errorf("%w: zone %s not visible to token", ErrUpstream, zoneID)
	}
	return env.Viewer.Zones[0], nil
}
