package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "VIGNETTE_HTTP_TIMEOUT"
	apiTokenEnvKey     = "VIGNETTE_API_TOKEN"
	adminTokenEnvKey   = "VIGNETTE_ADMIN_TOKEN"
)

// Client is a simple HTTP client for the vignette API.
type Client struct {
	baseURL    string
	http       *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv(), CheckRedirect: noRedirect},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

// UploadImage stores content as a new original.
func (c *Client) UploadImage(ctx context.Context, content io.Reader, filename, mediaType string) (ImageResponse, error) {
	var resp ImageResponse

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		if err := mw.WriteField("filename", filename); err != nil {
			return resp, err
		}
	}
	if mediaType != "" {
		if err := mw.WriteField("media_type", mediaType); err != nil {
			return resp, err
		}
	}
	part, err := mw.CreateFormFile("content", fileFieldName(filename))
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, err
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images", &body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) ListImages(ctx context.Context, limit, offset int) (ImageListResponse, error) {
	var resp ImageListResponse
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	err := c.do(ctx, http.MethodGet, "/v1/images", query, nil, &resp)
	return resp, err
}

func (c *Client) GetImage(ctx context.Context, id string) (ImageResponse, error) {
	var resp ImageResponse
	err := c.do(ctx, http.MethodGet, imagePath(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) DeleteImage(ctx context.Context, id string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, imagePath(id), nil, nil, &resp)
	return resp, err
}

// RenderPreset streams the derivative bytes of id for preset into w. A
// placeholder answer writes nothing and reports the redirect location.
func (c *Client) RenderPreset(ctx context.Context, id, preset string, w io.Writer) (RenderResult, error) {
	var out RenderResult
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+presetPath(id, preset), nil)
	if err != nil {
		return out, err
	}
	c.setAuthHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, decodeError(resp)
	}

	out.Kind = resp.Header.Get(ResultKindHeader)
	out.MediaType = resp.Header.Get("Content-Type")
	if resp.StatusCode >= 300 {
		out.Location = resp.Header.Get("Location")
		return out, nil
	}
	out.Bytes, err = io.Copy(w, resp.Body)
	return out, err
}

func (c *Client) PresetURL(ctx context.Context, id, preset string) (URLResponse, error) {
	var resp URLResponse
	err := c.do(ctx, http.MethodGet, presetPath(id, preset)+"/url", nil, nil, &resp)
	return resp, err
}

func (c *Client) Regenerate(ctx context.Context, id, preset string) (DerivativeResponse, error) {
	var resp DerivativeResponse
	err := c.do(ctx, http.MethodPost, presetPath(id, preset)+"/regenerate", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListPresets(ctx context.Context) ([]PresetResponse, error) {
	var resp []PresetResponse
	err := c.do(ctx, http.MethodGet, "/v1/presets", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetPreset(ctx context.Context, name string) (PresetResponse, error) {
	var resp PresetResponse
	err := c.do(ctx, http.MethodGet, "/v1/presets/"+url.PathEscape(name), nil, nil, &resp)
	return resp, err
}

// GC runs garbage collection on the server. Without apply it only reports.
func (c *Client) GC(ctx context.Context, apply bool, batchSize int) (GCResponse, error) {
	var resp GCResponse
	query := url.Values{}
	if apply {
		query.Set("apply", "true")
	}
	if batchSize > 0 {
		query.Set("batch_size", strconv.Itoa(batchSize))
	}
	endpoint := c.baseURL + "/v1/admin/gc"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return resp, err
	}
	if apply {
		req.Header.Set("X-Confirm", "true")
	}
	c.setAuthHeader(req)
	c.setAdminHeader(req)
	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

// noRedirect hands placeholder redirects back to the caller.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func imagePath(id string) string {
	return "/v1/images/" + url.PathEscape(id)
}

func presetPath(id, preset string) string {
	return imagePath(id) + "/presets/" + url.PathEscape(preset)
}

func fileFieldName(filename string) string {
	if filename == "" {
		return "upload"
	}
	return filename
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
