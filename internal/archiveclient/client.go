// Package archiveclient calls the archive service on behalf of a chat
// adapter. Every request carries a service token bound to the owner it acts for.
package archiveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imagevault/internal/servicetoken"
	"imagevault/pkg/domain"
)

// Error codes returned by the archive service that callers branch on.
const (
	CodeNotFound    = "IMAGE_NOT_FOUND"
	CodeBlobMissing = "IMAGE_BLOB_MISSING"
	CodeEmptyQuery  = "IMAGE_EMPTY_QUERY"
	CodeRateLimited = "IMAGE_RATE_LIMITED"
)

// Client calls the archive service over HTTP.
type Client struct {
	baseURL    string
	signer     *servicetoken.Signer
	httpClient *http.Client
}

// APIError represents an archive service error response.
type APIError struct {
	Status    int
	Message   string
	Code      string
	RequestID string
}

func (e *APIError) Error() string {
	return e.Message
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Upload is the archive's answer to a saved upload.
type Upload struct {
	DisplayID int          `json:"displayId"`
	Image     domain.Image `json:"image"`
}

// Fetched is an image record plus its bytes.
type Fetched struct {
	ID        int64
	Label     string
	CreatedAt time.Time
	Data      []byte
}

// NewClient constructs an archive client. A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, signer *servicetoken.Signer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		httpClient: httpClient,
	}
}

// SaveUpload stores data for ownerID under contentRef with an optional label.
func (c *Client) SaveUpload(ctx context.Context, ownerID int64, contentRef string, data []byte, label string) (Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("contentRef", contentRef); err != nil {
		return Upload{}, err
	}
	if label != "" {
		if err := mw.WriteField("label", label); err != nil {
			return Upload{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", contentRef+".jpg")
	if err != nil {
		return Upload{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return Upload{}, err
	}
	if err := mw.Close(); err != nil {
		return Upload{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, ownerID, "", &body)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out Upload
	if err := c.doJSON(req, &out); err != nil {
		return Upload{}, err
	}
	return out, nil
}

// ListImages returns the owner's images newest first with their ranks.
func (c *Client) ListImages(ctx context.Context, ownerID int64) ([]domain.RankedImage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, ownerID, "", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []domain.RankedImage `json:"items"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FindImages returns the owner's images whose label contains query.
func (c *Client) FindImages(ctx context.Context, ownerID int64, query string) ([]domain.Image, error) {
	req, err := c.newRequest(ctx, http.MethodGet, ownerID, "/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []domain.Image `json:"items"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetImage downloads one image and its metadata.
func (c *Client) GetImage(ctx context.Context, ownerID, id int64) (Fetched, error) {
	req, err := c.newRequest(ctx, http.MethodGet, ownerID, "/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return Fetched{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Fetched{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Fetched{}, decodeAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Fetched{}, fmt.Errorf("read image: %w", err)
	}
	out := Fetched{ID: id, Data: data}
	if v := resp.Header.Get(domain.HeaderImageID); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out.ID = n
		}
	}
	if v := resp.Header.Get(domain.HeaderImageLabel); v != "" {
		if label, err := url.QueryUnescape(v); err == nil {
			out.Label = label
		}
	}
	if v := resp.Header.Get(domain.HeaderImageCreatedAt); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			out.CreatedAt = ts
		}
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method string, ownerID int64, suffix string, body io.Reader) (*http.Request, error) {
	token, err := c.signer.Sign(servicetoken.ArchiveAudience, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sign archive token: %w", err)
	}
	endpoint := fmt.Sprintf("%s/internal/owners/%d/images%s", c.baseURL, ownerID, suffix)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		RequestID string `json:"requestId"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg, Code: errResp.Code, RequestID: errResp.RequestID}
}
