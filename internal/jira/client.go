// Package jira provides the HTTP client for the issue tracker. It covers
// only the surface the queue engine needs: JQL search, label and comment
// mutations, and the privileged transition used for promotion.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields of a Jira issue. Custom fields are
// captured separately because their keys vary per instance.
type IssueFields struct {
	Summary    string           `json:"summary"`
	Status     *StatusField     `json:"status"`
	Priority   *PriorityField   `json:"priority"`
	IssueType  *IssueTypeField  `json:"issuetype"`
	Labels     []string         `json:"labels"`
	Components []ComponentField `json:"components"`
	Votes      *VotesField      `json:"votes"`
	Security   *SecurityField   `json:"security"`
	Comment    *CommentPage     `json:"comment"`
	Created    string           `json:"created"`
	Updated    string           `json:"updated"`

	// Custom holds the raw customfield_* values keyed by field id.
	Custom map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and collects customfield_* entries
// into Custom so instance-specific fields stay addressable by id.
func (f *IssueFields) UnmarshalJSON(data []byte) error {
	type plain IssueFields
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		if !strings.HasPrefix(key, "customfield_") {
			continue
		}
		if p.Custom == nil {
			p.Custom = make(map[string]json.RawMessage)
		}
		p.Custom[key] = val
	}

	*f = IssueFields(p)
	return nil
}

// StatusField represents a Jira issue status.
type StatusField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PriorityField represents a Jira issue priority.
type PriorityField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueTypeField represents a Jira issue type.
type IssueTypeField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ComponentField represents a Jira component.
type ComponentField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VotesField represents the vote count on an issue.
type VotesField struct {
	Votes int `json:"votes"`
}

// SecurityField represents a Jira security level. Its presence alone marks
// an issue as security-relevant.
type SecurityField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommentPage represents the comment container field.
type CommentPage struct {
	Comments []RawComment `json:"comments"`
	Total    int          `json:"total"`
}

// RawComment represents a single comment from the REST API.
type RawComment struct {
	ID      string     `json:"id"`
	Author  *UserField `json:"author"`
	Body    string     `json:"body"`
	Created string     `json:"created"`
}

// UserField represents a Jira user.
type UserField struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// transitionList is the response of the transitions endpoint.
type transitionList struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a new Jira client.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(url, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// searchFields is the set of fields requested in search queries. Custom
// fields are added per-request because their ids are instance-specific.
const searchFields = "summary,status,priority,issuetype,labels,components,votes,security,comment,created,updated"

// SearchIssues queries Jira using JQL and returns all matching issues,
// handling pagination. extraFields lists custom field ids to fetch in
// addition to the standard set. limit caps the total number of issues
// returned; 0 means no cap.
func (c *Client) SearchIssues(ctx context.Context, jql string, limit int, extraFields ...string) ([]Issue, error) {
	fields := searchFields
	if len(extraFields) > 0 {
		fields += "," + strings.Join(extraFields, ",")
	}

	var allIssues []Issue
	startAt := 0
	maxResults := 100
	if limit > 0 && limit < maxResults {
		maxResults = limit
	}

	for {
		params := url.Values{
			"jql":        {jql},
			"fields":     {fields},
			"startAt":    {fmt.Sprintf("%d", startAt)},
			"maxResults": {fmt.Sprintf("%d", maxResults)},
		}

		apiURL := fmt.Sprintf("%s/rest/api/2/search?%s", c.URL, params.Encode())

		body, err := c.doRequest(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}

		var result SearchResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}

		allIssues = append(allIssues, result.Issues...)

		if limit > 0 && len(allIssues) >= limit {
			return allIssues[:limit], nil
		}
		if startAt+len(result.Issues) >= result.Total || len(result.Issues) == 0 {
			break
		}
		startAt += len(result.Issues)
	}

	return allIssues, nil
}

// CountIssues returns the number of issues matching the JQL without
// fetching their fields.
func (c *Client) CountIssues(ctx context.Context, jql string) (int, error) {
	params := url.Values{
		"jql":        {jql},
		"fields":     {"none"},
		"maxResults": {"0"},
	}

	apiURL := fmt.Sprintf("%s/rest/api/2/search?%s", c.URL, params.Encode())

	body, err := c.doRequest(ctx, "GET", apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("parse count response: %w", err)
	}

	return result.Total, nil
}

// AddLabel adds a label to an issue. Jira treats label adds as set
// insertion, so repeating the call is harmless.
func (c *Client) AddLabel(ctx context.Context, key, label string) error {
	payload := map[string]interface{}{
		"update": map[string]interface{}{
			"labels": []map[string]string{{"add": label}},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal label request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s", c.URL, url.PathEscape(key))

	if _, err := c.doRequest(ctx, "PUT", apiURL, data); err != nil {
		return fmt.Errorf("add label to %s: %w", key, err)
	}
	return nil
}

// AddComment appends a comment to an issue. The call always appends; the
// caller is responsible for not posting duplicates.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	payload := map[string]interface{}{"body": body}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal comment request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.URL, url.PathEscape(key))

	if _, err := c.doRequest(ctx, "POST", apiURL, data); err != nil {
		return fmt.Errorf("add comment to %s: %w", key, err)
	}
	return nil
}

// Transition performs a workflow transition by name, optionally setting
// fields and posting a comment in the same call. Promotion relies on this:
// the self-transition grants write access to fields hidden from the normal
// edit screen.
func (c *Client) Transition(ctx context.Context, key, name string, fields map[string]interface{}, comment string) error {
	id, err := c.resolveTransition(ctx, key, name)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"transition": map[string]string{"id": id},
	}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	if comment != "" {
		payload["update"] = map[string]interface{}{
			"comment": []map[string]interface{}{
				{"add": map[string]string{"body": comment}},
			},
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transition request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s/transitions", c.URL, url.PathEscape(key))

	if _, err := c.doRequest(ctx, "POST", apiURL, data); err != nil {
		return fmt.Errorf("transition %s via %q: %w", key, name, err)
	}
	return nil
}

// resolveTransition looks up the transition id for a name on the given
// issue. Transition ids are workflow-specific, names are stable.
func (c *Client) resolveTransition(ctx context.Context, key, name string) (string, error) {
	apiURL := fmt.Sprintf("%s/rest/api/2/issue/%s/transitions", c.URL, url.PathEscape(key))

	body, err := c.doRequest(ctx, "GET", apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("list transitions for %s: %w", key, err)
	}

	var list transitionList
	if err := json.Unmarshal(body, &list); err != nil {
		return "", fmt.Errorf("parse transitions response: %w", err)
	}

	for _, tr := range list.Transitions {
		if strings.EqualFold(tr.Name, name) {
			return tr.ID, nil
		}
	}
	return "", fmt.Errorf("transition %q not available on %s", name, key)
}

// doRequest executes an authenticated HTTP request with transient-error
// retry and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	var respBody []byte
	err := withRetry(ctx, func() error {
		var err error
		respBody, err = c.doRequestOnce(ctx, method, apiURL, body)
		return err
	})
	return respBody, err
}

func (c *Client) doRequestOnce(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "intqueue/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// PUT returns 204 No Content on success
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	return respBody, nil
}

// setAuth sets the appropriate authentication header on the request.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

// statusError carries the HTTP status so the retry layer can distinguish
// transient server errors from permanent client errors.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.code, e.body)
}
