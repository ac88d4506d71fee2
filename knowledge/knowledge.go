// Package knowledge attaches knowledge-base tools to a middle tier: a
// search tool that queries a REST search index and a grounding-report
// tool that surfaces the consulted sources to the client.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	midtier "github.com/voicekit/midtier-go"
	"github.com/voicekit/midtier-go/tool"
)

const defaultAPIVersion = "2024-07-01"

type Config struct {
	Endpoint string
	Index    string
	APIKey   string

	// Optional field mapping; defaults match a chunked index layout.
	APIVersion            string
	IdentifierField       string
	ContentField          string
	TitleField            string
	SemanticConfiguration string
	Top                   int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// Attach registers the search and report_grounding tools.
func Attach(mt *midtier.MiddleTier, cfg Config) error {
	if cfg.Endpoint == "" || cfg.Index == "" {
		return fmt.Errorf("knowledge: endpoint and index are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.IdentifierField == "" {
		cfg.IdentifierField = "chunk_id"
	}
	if cfg.ContentField == "" {
		cfg.ContentField = "chunk"
	}
	if cfg.TitleField == "" {
		cfg.TitleField = "title"
	}
	if cfg.Top == 0 {
		cfg.Top = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	kb := &client{cfg: cfg, http: cfg.HTTPClient, log: cfg.Logger}

	if err := mt.RegisterTool(searchSchema, kb.search); err != nil {
		return err
	}
	return mt.RegisterTool(groundingSchema, kb.reportGrounding)
}

var searchSchema = tool.Tool{
	Type: "function",
	Name: "search",
	Description: "Search the knowledge base. The knowledge base is in English, " +
		"translate to and from English if needed. Results are formatted as a " +
		"source name first in square brackets, followed by the text content.",
	Parameters: tool.Parameters{
		Type: "object",
		Properties: tool.Properties{
			"query": {Type: "string", Description: "Search query"},
		},
		Required: []string{"query"},
	},
}

var groundingSchema = tool.Tool{
	Type: "function",
	Name: "report_grounding",
	Description: "Report use of a source from the knowledge base as part of an answer. " +
		"Sources appear in square brackets before each knowledge base passage. " +
		"Always use this tool to cite sources when responding with information " +
		"from the knowledge base.",
	Parameters: tool.Parameters{
		Type: "object",
		Properties: tool.Properties{
			"sources": {
				Type:        "array",
				Description: "List of source names actually used, each from the knowledge base",
				Items:       &tool.Property{Type: "string"},
			},
		},
		Required: []string{"sources"},
	},
}

func (c *client) search(ctx context.Context, args map[string]any) (tool.Result, error) {
	query, _ := args["query"].(string)
	c.log.Info("knowledge search", slog.String("query", query))

	body := map[string]any{
		"search": query,
		"top":    c.cfg.Top,
		"select": strings.Join([]string{c.cfg.IdentifierField, c.cfg.ContentField}, ","),
	}
	if c.cfg.SemanticConfiguration != "" {
		body["queryType"] = "semantic"
		body["semanticConfiguration"] = c.cfg.SemanticConfiguration
	}

	docs, err := c.query(ctx, body)
	if err != nil {
		return tool.Result{}, err
	}

	var sb strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&sb, "[%s]: %s\n-----\n",
			stringField(doc, c.cfg.IdentifierField),
			stringField(doc, c.cfg.ContentField))
	}

	return tool.ServerResult(sb.String()), nil
}

func (c *client) reportGrounding(ctx context.Context, args map[string]any) (tool.Result, error) {
	ids := stringSlice(args["sources"])
	c.log.Info("grounding report", slog.Any("sources", ids))

	if len(ids) == 0 {
		return tool.ClientResult(`{"sources": []}`), nil
	}

	docs, err := c.query(ctx, map[string]any{
		"filter": fmt.Sprintf("search.in(%s, '%s')", c.cfg.IdentifierField, strings.Join(ids, ",")),
		"select": strings.Join([]string{c.cfg.IdentifierField, c.cfg.TitleField, c.cfg.ContentField}, ","),
		"top":    len(ids),
	})
	if err != nil {
		return tool.Result{}, err
	}

	sources := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, map[string]any{
			"chunk_id": stringField(doc, c.cfg.IdentifierField),
			"title":    stringField(doc, c.cfg.TitleField),
			"chunk":    stringField(doc, c.cfg.ContentField),
		})
	}

	payload, err := json.Marshal(map[string]any{"sources": sources})
	if err != nil {
		return tool.Result{}, err
	}

	return tool.ClientResult(string(payload)), nil
}

// query posts one search request and returns the result documents.
func (c *client) query(ctx context.Context, body map[string]any) ([]map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		c.cfg.Endpoint, c.cfg.Index, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search request failed: %s: %s", resp.Status, msg)
	}

	var result struct {
		Value []map[string]any `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func stringField(doc map[string]any, field string) string {
	v, _ := doc[field].(string)
	return v
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
