// Package email implements the Email Source Connector (spec §4.D): the
// concrete Connector that pages through an upstream mailbox REST API,
// fetches message bodies with bounded concurrency, and normalizes them
// into the unified document schema.
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/sync/errgroup"

	"github.com/personalrag/ragengine/domain/connector"
	"github.com/personalrag/ragengine/domain/credential"
	"github.com/personalrag/ragengine/domain/document"
)

// Tuning constants from the source obligations (spec §4.D).
const (
	maxSubBatch     = 50
	pagePause       = 100 * time.Millisecond
	subBatchPause   = 100 * time.Millisecond
	signatureMarker = "\n-- \n"
)

// Connector implements connector.Connector against a Gmail-shaped REST API:
// GET {baseURL}/messages (list, paged) and GET {baseURL}/messages/{id}
// (full message with MIME parts), both bearer-authenticated per call.
type Connector struct {
	credentials credential.Provider
	httpClient  *http.Client
	baseURL     string
	logger      *slog.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.httpClient = client }
}

// WithBaseURL overrides the default API base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) { c.baseURL = baseURL }
}

// New constructs an email Connector.
func New(credentials credential.Provider, logger *slog.Logger, opts ...Option) *Connector {
	c := &Connector{
		credentials: credentials,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     "https://gmail.googleapis.com/gmail/v1/users/me",
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source identifies this connector as the email source.
func (c *Connector) Source() document.Source { return document.SourceEmail }

// Authenticate obtains a currently valid access token for (userID, email).
func (c *Connector) Authenticate(ctx context.Context, userID string) (credential.Credential, error) {
	cred, err := c.credentials.AccessToken(ctx, userID, document.SourceEmail)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("email connector: authenticate: %w", err)
	}
	if !cred.Valid(time.Now()) {
		return credential.Credential{}, fmt.Errorf("email connector: credential for user %s has expired", userID)
	}
	return cred, nil
}

// ValidateConnection issues a lightweight profile call to confirm the
// current credential still authorizes requests.
func (c *Connector) ValidateConnection(ctx context.Context, userID string) (bool, error) {
	cred, err := c.Authenticate(ctx, userID)
	if err != nil {
		return false, nil
	}
	req, err := c.newRequest(ctx, cred, http.MethodGet, "/profile", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("email connector: validate connection: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// FetchAll pages through every message visible to the authenticated user.
func (c *Connector) FetchAll(ctx context.Context, opts connector.FetchOptions) ([]connector.RawRecord, error) {
	cred, err := c.Authenticate(ctx, opts.UserID)
	if err != nil {
		return nil, err
	}
	return c.fetchQuery(ctx, cred, "")
}

// FetchNew returns messages received after since, translated into the
// upstream's native date-query syntax.
func (c *Connector) FetchNew(ctx context.Context, userID string, since time.Time) ([]connector.RawRecord, error) {
	cred, err := c.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	query := "after:" + since.UTC().Format("2006/01/02")
	return c.fetchQuery(ctx, cred, query)
}

// fetchQuery pages the list endpoint, then fetches each page's message
// bodies in sub-batches of bounded concurrency, pacing between both pages
// and sub-batches to avoid bursting the upstream API (spec §4.D).
func (c *Connector) fetchQuery(ctx context.Context, cred credential.Credential, query string) ([]connector.RawRecord, error) {
	var records []connector.RawRecord
	pageToken := ""

	for {
		ids, nextToken, err := c.listPage(ctx, cred, query, pageToken)
		if err != nil {
			return records, err
		}

		page, err := c.fetchSubBatches(ctx, cred, ids)
		if err != nil {
			return records, err
		}
		records = append(records, page...)

		if nextToken == "" {
			break
		}
		pageToken = nextToken

		select {
		case <-ctx.Done():
			return records, ctx.Err()
		case <-time.After(pagePause):
		}
	}

	return records, nil
}

// fetchSubBatches fetches message bodies for ids in sub-batches of at most
// maxSubBatch, each sub-batch fetched concurrently, individual message
// failures skipped rather than aborting the whole batch.
func (c *Connector) fetchSubBatches(ctx context.Context, cred credential.Credential, ids []string) ([]connector.RawRecord, error) {
	var out []connector.RawRecord

	for start := 0; start < len(ids); start += maxSubBatch {
		end := start + maxSubBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(maxSubBatch)
		results := make([]*connector.RawRecord, len(batch))

		for i, id := range batch {
			group.Go(func() error {
				msg, err := c.getMessage(groupCtx, cred, id)
				if err != nil {
					c.logger.Warn("email connector: fetch message failed, skipping",
						slog.String("message_id", id), slog.String("error", err.Error()))
					return nil
				}
				results[i] = &msg
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return out, fmt.Errorf("email connector: fetch sub-batch: %w", err)
		}

		for _, r := range results {
			if r != nil {
				out = append(out, *r)
			}
		}

		if end < len(ids) {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(subBatchPause):
			}
		}
	}

	return out, nil
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// listPage fetches one page of message ids.
func (c *Connector) listPage(ctx context.Context, cred credential.Credential, query, pageToken string) ([]string, string, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	params.Set("maxResults", "100")

	req, err := c.newRequest(ctx, cred, http.MethodGet, "/messages?"+params.Encode(), nil)
	if err != nil {
		return nil, "", err
	}

	var listResp listResponse
	if err := c.doJSON(req, &listResp); err != nil {
		return nil, "", fmt.Errorf("email connector: list messages: %w", err)
	}

	ids := make([]string, len(listResp.Messages))
	for i, m := range listResp.Messages {
		ids[i] = m.ID
	}
	return ids, listResp.NextPageToken, nil
}

type gmailMessage struct {
	ID           string           `json:"id"`
	ThreadID     string           `json:"threadId"`
	LabelIDs     []string         `json:"labelIds"`
	Snippet      string           `json:"snippet"`
	InternalDate string           `json:"internalDate"`
	Payload      gmailMessagePart `json:"payload"`
}

type gmailMessagePart struct {
	MimeType string             `json:"mimeType"`
	Headers  []gmailHeader      `json:"headers"`
	Body     gmailMessageBody   `json:"body"`
	Parts    []gmailMessagePart `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailMessageBody struct {
	Data string `json:"data"`
}

// getMessage fetches one message's full payload and returns it as a
// RawRecord, opaque until Normalize runs.
func (c *Connector) getMessage(ctx context.Context, cred credential.Credential, id string) (connector.RawRecord, error) {
	req, err := c.newRequest(ctx, cred, http.MethodGet, "/messages/"+id+"?format=full", nil)
	if err != nil {
		return connector.RawRecord{}, err
	}

	var msg gmailMessage
	if err := c.doJSON(req, &msg); err != nil {
		return connector.RawRecord{}, fmt.Errorf("get message %s: %w", id, err)
	}

	return connector.RawRecord{
		NativeID: msg.ID,
		Payload: map[string]any{
			"message": msg,
		},
	}, nil
}

func (c *Connector) newRequest(ctx context.Context, cred credential.Credential, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("email connector: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Connector) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(bytes.TrimSpace(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Normalize converts one raw Gmail message into the unified Document
// schema (spec §4.D).
func (c *Connector) Normalize(ctx context.Context, userID string, raw connector.RawRecord) (document.Document, error) {
	msgAny, ok := raw.Payload["message"]
	if !ok {
		return document.Document{}, fmt.Errorf("email connector: raw record %s missing message payload", raw.NativeID)
	}
	msg, ok := msgAny.(gmailMessage)
	if !ok {
		return document.Document{}, fmt.Errorf("email connector: raw record %s has unexpected payload type", raw.NativeID)
	}

	headers := headerMap(msg.Payload.Headers)
	content := extractBody(msg.Payload)
	content = stripSignature(content)
	content = strings.TrimSpace(content)

	if content == "" {
		return document.Document{}, fmt.Errorf("email connector: message %s has empty body after cleanup", msg.ID)
	}

	timestamp := internalDateToTime(msg.InternalDate)
	documentID := document.BuildDocumentID(document.SourceEmail, msg.ID)

	metadata := map[string]any{
		"from":      headers["from"],
		"to":        headers["to"],
		"subject":   headers["subject"],
		"labels":    msg.LabelIDs,
		"thread_id": msg.ThreadID,
		"snippet":   msg.Snippet,
	}

	return document.New(
		documentID,
		userID,
		document.SourceEmail,
		document.TypeMessage,
		content,
		headers["subject"],
		headers["from"],
		timestamp,
		metadata,
	), nil
}

func headerMap(headers []gmailHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[strings.ToLower(h.Name)] = h.Value
	}
	return m
}

// extractBody prefers the text/plain MIME part, falling back to
// HTML-to-text conversion of the text/html part when no plain part exists.
func extractBody(part gmailMessagePart) string {
	if plain, ok := findPart(part, "text/plain"); ok {
		return decodeBody(plain.Body.Data)
	}
	if html, ok := findPart(part, "text/html"); ok {
		return html2text.HTML2Text(decodeBody(html.Body.Data))
	}
	return ""
}

func findPart(part gmailMessagePart, mimeType string) (gmailMessagePart, bool) {
	if part.MimeType == mimeType && part.Body.Data != "" {
		return part, true
	}
	for _, child := range part.Parts {
		if found, ok := findPart(child, mimeType); ok {
			return found, true
		}
	}
	return gmailMessagePart{}, false
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// stripSignature drops everything from the first "-- " signature marker
// onward, per RFC 3676's signature delimiter convention.
func stripSignature(content string) string {
	if idx := strings.Index(content, signatureMarker); idx >= 0 {
		return content[:idx]
	}
	return content
}

func internalDateToTime(internalDate string) time.Time {
	ms, err := strconv.ParseInt(internalDate, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var _ connector.Connector = (*Connector)(nil)
