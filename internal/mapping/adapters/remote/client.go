package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"psur-evidence/internal/catalog"
	mapping "psur-evidence/internal/mapping/domain"
)

const (
	defaultTimeout = 10 * time.Second
	mappingsPath   = "/v1/column-mappings"
	maxErrorBody   = 512
)

// Client calls a remote column-mapping service over JSON/HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient constructs a remote mapping client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("automap remote: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type mapRequest struct {
	EvidenceType  string        `json:"evidence_type"`
	SourceColumns []string      `json:"source_columns"`
	TargetFields  []targetField `json:"target_fields"`
}

type targetField struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Aliases  []string `json:"aliases,omitempty"`
}

type mapResponse struct {
	Mappings []struct {
		SourceColumn string  `json:"source_column"`
		TargetField  string  `json:"target_field"`
		Confidence   float64 `json:"confidence"`
	} `json:"mappings"`
}

// Map asks the remote service for column mappings. Results are returned
// unvalidated; callers check them against the schema.
func (c *Client) Map(ctx context.Context, schema catalog.Schema, aliases map[string][]string, columns []string) ([]mapping.ColumnMapping, error) {
	req := mapRequest{
		EvidenceType:  string(schema.Type),
		SourceColumns: columns,
	}
	for _, f := range schema.Fields {
		req.TargetFields = append(req.TargetFields, targetField{
			Name:     f.Name,
			Required: f.Required,
			Aliases:  aliases[f.Name],
		})
	}

	var resp mapResponse
	if err := c.doJSON(ctx, http.MethodPost, mappingsPath, req, &resp); err != nil {
		return nil, err
	}
	out := make([]mapping.ColumnMapping, 0, len(resp.Mappings))
	for _, m := range resp.Mappings {
		out = append(out, mapping.ColumnMapping{
			SourceColumn: m.SourceColumn,
			TargetField:  m.TargetField,
			Confidence:   m.Confidence,
			AutoMapped:   true,
		})
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("automap remote: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
