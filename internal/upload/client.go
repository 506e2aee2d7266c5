// Package upload talks to the remote logging service: session login,
// report lifecycle, and the master-table/segment write calls. All calls
// for one report are issued sequentially; a Client's cookie and token
// state must never be shared by two concurrent upload sequences.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// ClientVersion is reported on create-report and as the user agent
	// version. It tracks the desktop client release the wire format was
	// taken from.
	ClientVersion = "8.17.115"

	// ParserVersion is the log format version reported on create.
	ParserVersion = 72

	// DefaultBaseURL is the logging service origin.
	DefaultBaseURL = "https://www.fflogs.com"

	basePath = "/desktop-client"

	// xsrfCookie is set by the service on login; its value is echoed
	// back on every subsequent call in the xsrfHeader.
	xsrfCookie = "XSRF-TOKEN"
	xsrfHeader = "X-XSRF-TOKEN"

	maxResponseBytes = 1 * 1024 * 1024
)

// Guild is one guild the account may file reports under.
type Guild struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Account describes the logged-in user.
type Account struct {
	UserName string  `json:"userName"`
	Guilds   []Guild `json:"guilds"`
}

// Meta carries the caller-provided report attributes for create-report.
type Meta struct {
	FileName    string
	Region      int
	Visibility  int
	Description string

	// GuildID files the report under a guild; zero means personal logs.
	GuildID int
}

// Config configures a Client. Zero values get defaults.
type Config struct {
	BaseURL   string
	UserAgent string

	// Timeout bounds each HTTP call. Default 60s; segment bodies can be
	// large.
	Timeout time.Duration

	// HTTPClient, when set, supplies the transport. It is copied and the
	// copy's cookie jar replaced with the session jar, so the caller's
	// client is untouched.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is a session-scoped HTTP client for the logging service. The
// cookie jar carries the session and XSRF state between calls.
type Client struct {
	baseURL string
	ua      string
	http    *http.Client
	log     *slog.Logger
}

// New returns a client with a fresh cookie jar and no session. Call
// Login before any report operation.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "FFLogsUploader/" + ClientVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		cp := *cfg.HTTPClient
		hc = &cp
	}
	hc.Jar = jar
	if hc.Timeout <= 0 {
		hc.Timeout = cfg.Timeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		ua:      cfg.UserAgent,
		http:    hc,
		log:     cfg.Logger,
	}, nil
}

// Login authenticates and primes the session cookies. A non-success
// status is an *AuthError; transport failures pass through.
func (c *Client) Login(ctx context.Context, email, password string) (*Account, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/log-in", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	defer resp.Body.Close()

	if !successful(resp.StatusCode) {
		return nil, &AuthError{Status: resp.StatusCode}
	}

	var decoded struct {
		User Account `json:"user"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	c.log.Info("logged in", "user", decoded.User.UserName, "guilds", len(decoded.User.Guilds))
	return &decoded.User, nil
}

// RefreshToken asks the service for a fresh session token. Best-effort
// by contract; callers log failures and continue.
func (c *Client) RefreshToken(ctx context.Context) error {
	resp, err := c.post(ctx, "/token", "", nil)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	defer drain(resp)
	if !successful(resp.StatusCode) {
		return &RequestError{Op: "refresh token", Status: resp.StatusCode}
	}
	return nil
}

// CreateReport opens a new report and returns its code. The service
// answers with either a bare quoted string or an object carrying a code
// field; both are accepted.
func (c *Client) CreateReport(ctx context.Context, meta Meta) (string, error) {
	now := time.Now().UnixMilli()
	payload := map[string]any{
		"clientVersion": ClientVersion,
		"parserVersion": ParserVersion,
		"startTime":     now,
		"endTime":       now,
		"fileName":      meta.FileName,
		"region":        meta.Region,
		"visibility":    meta.Visibility,
		"description":   meta.Description,
	}
	if meta.GuildID != 0 {
		payload["guild"] = meta.GuildID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, "/create-report", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating report: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading create response: %w", err)
	}
	if !successful(resp.StatusCode) {
		return "", &RequestError{Op: "create report", Status: resp.StatusCode, Body: preview(raw)}
	}

	code := parseReportCode(raw)
	if code == "" {
		return "", fmt.Errorf("create report: unrecognized response %q", preview(raw))
	}
	c.log.Info("report created", "code", code)
	return code, nil
}

// SetMasterTable uploads the current master table for the report as a
// single-file zip attachment.
func (c *Client) SetMasterTable(ctx context.Context, code, table string) error {
	zipped, err := zipSingle("master.txt", []byte(table))
	if err != nil {
		return fmt.Errorf("zipping master table: %w", err)
	}
	body, contentType, err := multipartZip("logfile", "master.zip", zipped, nil)
	if err != nil {
		return fmt.Errorf("framing master table: %w", err)
	}

	resp, err := c.post(ctx, "/set-report-master-table/"+url.PathEscape(code), contentType, body)
	if err != nil {
		return fmt.Errorf("uploading master table: %w", err)
	}
	defer drain(resp)
	if !successful(resp.StatusCode) {
		return &RequestError{Op: "set master table", Status: resp.StatusCode}
	}
	return nil
}

// AddSegment uploads one fight's framed payload for the report.
func (c *Client) AddSegment(ctx context.Context, code string, seg Segment) error {
	zipped, err := zipSingle("segment.txt", seg.payload())
	if err != nil {
		return fmt.Errorf("zipping segment: %w", err)
	}
	params, err := json.Marshal(seg.parameters())
	if err != nil {
		return err
	}
	body, contentType, err := multipartZip("logfile", "segment.zip", zipped, map[string]string{
		"parameters": string(params),
	})
	if err != nil {
		return fmt.Errorf("framing segment: %w", err)
	}

	resp, err := c.post(ctx, "/add-report-segment/"+url.PathEscape(code), contentType, body)
	if err != nil {
		return fmt.Errorf("uploading segment %d: %w", seg.Index, err)
	}
	defer drain(resp)
	if !successful(resp.StatusCode) {
		return &RequestError{Op: fmt.Sprintf("add segment %d", seg.Index), Status: resp.StatusCode}
	}
	c.log.Debug("segment uploaded", "code", code, "segment", seg.Index, "fight", seg.Name)
	return nil
}

// Terminate closes the report. Best-effort by contract; callers treat a
// failure as log-only.
func (c *Client) Terminate(ctx context.Context, code string) error {
	resp, err := c.post(ctx, "/terminate-report/"+url.PathEscape(code), "", nil)
	if err != nil {
		return fmt.Errorf("terminating report: %w", err)
	}
	defer drain(resp)
	if !successful(resp.StatusCode) {
		return &RequestError{Op: "terminate report", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+basePath+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.echoXSRF(req)
	return c.http.Do(req)
}

// echoXSRF mirrors the session's XSRF cookie into the request header
// the service validates. The cookie value arrives URL-encoded.
func (c *Client) echoXSRF(req *http.Request) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	for _, ck := range c.http.Jar.Cookies(base) {
		if ck.Name != xsrfCookie {
			continue
		}
		token := ck.Value
		if decoded, err := url.QueryUnescape(token); err == nil {
			token = decoded
		}
		req.Header.Set(xsrfHeader, token)
		return
	}
}

func parseReportCode(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if res := gjson.GetBytes(trimmed, "code"); res.Exists() {
		return res.String()
	}
	var bare string
	if err := json.Unmarshal(trimmed, &bare); err == nil {
		return bare
	}
	return ""
}

func successful(status int) bool {
	return status >= 200 && status < 300
}

func preview(b []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}

// drain discards the remaining body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}
