// Package loglookup attaches a sign-in diagnostic tool to a middle tier.
// The tool fetches a member's recent sign-in log entries from an external
// log API so the model can diagnose login problems.
package loglookup

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

type Config struct {
	Endpoint string
	APIKey   string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

var signinLogsSchema = tool.Tool{
	Type: "function",
	Name: "get_signin_logs",
	Description: "Retrieves sign-in logs for a member to help diagnose login issues. " +
		"Use this when a user is having trouble logging in and you need to see their " +
		"recent login attempts. The logs show success/failure status, error messages, " +
		"and other details that can help identify patterns or specific issues. Use this " +
		"information together with the knowledge base to diagnose problems and find " +
		"solutions for the member.",
	Parameters: tool.Parameters{
		Type: "object",
		Properties: tool.Properties{
			"member_number": {Type: "string", Description: "The member's account number"},
		},
		Required: []string{"member_number"},
	},
}

// Attach registers the get_signin_logs tool.
func Attach(mt *midtier.MiddleTier, cfg Config) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("loglookup: endpoint is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &client{cfg: cfg, http: cfg.HTTPClient, log: cfg.Logger}
	return mt.RegisterTool(signinLogsSchema, c.getSigninLogs)
}

type logEntry struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	Description string `json:"description"`
	IP          string `json:"ip"`
}

// getSigninLogs fetches and formats the member's recent sign-in activity.
// Every failure becomes a textual result for the model rather than a
// protocol fault.
func (c *client) getSigninLogs(ctx context.Context, args map[string]any) (tool.Result, error) {
	memberNumber, _ := args["member_number"].(string)
	c.log.Info("fetching sign-in logs", slog.String("member", memberNumber))

	if c.cfg.APIKey == "" {
		c.log.Error("sign-in log API key not configured")
		return tool.ServerResult("Error: Unable to access sign-in logs - API key not configured"), nil
	}

	payload, err := json.Marshal(map[string]string{"member_number": memberNumber})
	if err != nil {
		return tool.Result{}, err
	}

	url := fmt.Sprintf("%s?code=%s", c.cfg.Endpoint, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return tool.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tool.ServerResult(fmt.Sprintf("Failed to retrieve login logs: %s", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error("sign-in log request failed",
			slog.Int("status", resp.StatusCode), slog.String("body", string(msg)))
		return tool.ServerResult(fmt.Sprintf("Error retrieving login logs: %d", resp.StatusCode)), nil
	}

	var entries []logEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return tool.ServerResult(fmt.Sprintf("Failed to retrieve login logs: %s", err)), nil
	}

	return tool.ServerResult(formatEntries(memberNumber, entries)), nil
}

func formatEntries(memberNumber string, entries []logEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sign-in logs for member %s:\n\n", memberNumber)

	if len(entries) == 0 {
		sb.WriteString("No login records found.")
		return sb.String()
	}

	for _, e := range entries {
		status := "Failed"
		if e.Success {
			status = "Successful"
		}
		date := e.Date
		if date == "" {
			date = "Unknown date"
		}
		event := e.Type
		if event == "" {
			event = "Unknown event"
		}
		fmt.Fprintf(&sb, "Date: %s\nEvent: %s\nStatus: %s\nDescription: %s\nIP: %s\n-----\n",
			date, event, status, e.Description, e.IP)
	}

	return sb.String()
}
