package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// preferredTransitions is the order in which settled-state transitions
// are tried when cancelling a ticket.
var preferredTransitions = []string{"done", "duplicate", "close", "cancel", "resolve"}

// JiraClient implements Source and Sink against the Jira Cloud REST API.
type JiraClient struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	email   string
	token   string
	logger  *slog.Logger
}

// JiraOption configures a JiraClient.
type JiraOption func(*JiraClient)

// WithJiraHTTPClient sets a custom HTTP client.
func WithJiraHTTPClient(c *http.Client) JiraOption {
	return func(j *JiraClient) { j.client = c }
}

// WithJiraRateLimit overrides the default request rate limit.
func WithJiraRateLimit(rps float64, burst int) JiraOption {
	return func(j *JiraClient) { j.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewJiraClient creates a client for the given base URL (e.g.
// https://yoursite.atlassian.net) authenticated with email + API token.
func NewJiraClient(baseURL, email, token string, logger *slog.Logger, opts ...JiraOption) *JiraClient {
	if logger == nil {
		logger = slog.Default()
	}
	j := &JiraClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		token:   token,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Search returns ticket snapshots created within the lookback window,
// oldest first. Only a single page is fetched; the expected per-run
// volume fits one page.
func (j *JiraClient) Search(ctx context.Context, project string, lookback time.Duration) ([]*protocol.Ticket, error) {
	days := int(lookback.Hours() / 24)
	if days < 1 {
		days = 1
	}
	jql := fmt.Sprintf("project = %s AND created >= -%dd ORDER BY created ASC", project, days)

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", "200")
	params.Set("fields", "summary,created,status,reporter,description")

	body, status, err := j.get(ctx, "/rest/api/3/search/jql?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusGone {
		// Older sites only serve the v2 search endpoint.
		body, status, err = j.get(ctx, "/rest/api/2/search?"+params.Encode())
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("jira: search %s: status %d", project, status)
	}

	var parsed struct {
		Issues []jiraIssue `json:"issues"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jira: decode search response: %w", err)
	}

	tickets := make([]*protocol.Ticket, 0, len(parsed.Issues))
	for _, iss := range parsed.Issues {
		t := iss.toTicket()
		if t.Created.IsZero() {
			j.logger.Warn("ticket has unparseable creation timestamp",
				"key", t.Key,
				"created", iss.Fields.Created,
			)
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// Cancel transitions a ticket to a settled state with an audit comment.
// The comment is posted best-effort before the transition; a comment
// failure alone does not abort the cancellation.
func (j *JiraClient) Cancel(ctx context.Context, ticketKey, originalKey, comment string) error {
	transitions, err := j.transitions(ctx, ticketKey)
	if err != nil {
		return err
	}

	var chosen *jiraTransition
	for _, pref := range preferredTransitions {
		for i := range transitions {
			if strings.Contains(strings.ToLower(transitions[i].Name), pref) {
				chosen = &transitions[i]
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("jira: no settled transition available for %s", ticketKey)
	}

	if comment != "" {
		if err := j.addComment(ctx, ticketKey, comment); err != nil {
			j.logger.Warn("failed to add audit comment", "key", ticketKey, "error", err)
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"transition": map[string]string{"id": chosen.ID},
	})
	body, status, err := j.post(ctx, "/rest/api/3/issue/"+ticketKey+"/transitions", payload)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("jira: transition %s via %q: status %d: %s", ticketKey, chosen.Name, status, truncate(string(body), 200))
	}

	j.logger.Info("ticket cancelled",
		"key", ticketKey,
		"original", originalKey,
		"transition", chosen.Name,
	)
	return nil
}

type jiraTransition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (j *JiraClient) transitions(ctx context.Context, ticketKey string) ([]jiraTransition, error) {
	body, status, err := j.get(ctx, "/rest/api/3/issue/"+ticketKey+"/transitions")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("jira: transitions for %s: status %d", ticketKey, status)
	}

	var parsed struct {
		Transitions []jiraTransition `json:"transitions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jira: decode transitions: %w", err)
	}
	return parsed.Transitions, nil
}

func (j *JiraClient) addComment(ctx context.Context, ticketKey, comment string) error {
	payload, _ := json.Marshal(map[string]any{
		"body": adfParagraphs(comment),
	})
	body, status, err := j.post(ctx, "/rest/api/3/issue/"+ticketKey+"/comment", payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("jira: comment on %s: status %d: %s", ticketKey, status, truncate(string(body), 200))
	}
	return nil
}

// --- transport ---

func (j *JiraClient) get(ctx context.Context, path string) ([]byte, int, error) {
	return j.do(ctx, http.MethodGet, path, nil)
}

func (j *JiraClient) post(ctx context.Context, path string, payload []byte) ([]byte, int, error) {
	return j.do(ctx, http.MethodPost, path, payload)
}

func (j *JiraClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("jira: rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, j.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("jira: create request: %w", err)
	}
	req.SetBasicAuth(j.email, j.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("jira: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("jira: read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// --- payload mapping ---

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Created string `json:"created"`
		Status  struct {
			Name           string `json:"name"`
			StatusCategory struct {
				Key string `json:"key"`
			} `json:"statusCategory"`
		} `json:"status"`
		Reporter *struct {
			AccountID    string `json:"accountId"`
			DisplayName  string `json:"displayName"`
			EmailAddress string `json:"emailAddress"`
		} `json:"reporter"`
		Description json.RawMessage `json:"description"`
	} `json:"fields"`
}

func (iss jiraIssue) toTicket() *protocol.Ticket {
	t := &protocol.Ticket{
		Key:            iss.Key,
		Summary:        iss.Fields.Summary,
		Status:         iss.Fields.Status.Name,
		StatusCategory: protocol.StatusCategory(iss.Fields.Status.StatusCategory.Key),
		Created:        parseJiraTime(iss.Fields.Created),
		Description:    flattenDescription(iss.Fields.Description),
	}
	if iss.Fields.Reporter != nil {
		t.Reporter = &protocol.Reporter{
			AccountID:   iss.Fields.Reporter.AccountID,
			DisplayName: iss.Fields.Reporter.DisplayName,
			Email:       iss.Fields.Reporter.EmailAddress,
		}
	}
	return t
}

// parseJiraTime handles Jira's millisecond offset format and plain
// RFC3339. An unparseable value yields the zero time; the engine skips
// such comparisons instead of failing the batch.
func parseJiraTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// flattenDescription extracts plain text from a description field that
// is either a bare string (API v2) or an ADF document (API v3).
func flattenDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	doc.collectText(&b)
	return strings.TrimSpace(b.String())
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

func (n adfNode) collectText(b *strings.Builder) {
	if n.Text != "" {
		b.WriteString(n.Text)
	}
	for i, child := range n.Content {
		child.collectText(b)
		// Block-level children separate with spaces, not run together.
		if i < len(n.Content)-1 && child.Type == "paragraph" {
			b.WriteString(" ")
		}
	}
}

// adfParagraphs wraps plain text lines into a minimal ADF document for
// the v3 comment endpoint.
func adfParagraphs(text string) map[string]any {
	var content []map[string]any
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		content = append(content, map[string]any{
			"type": "paragraph",
			"content": []map[string]any{
				{"type": "text", "text": line},
			},
		})
	}
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": content,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
