// Package client talks to a share host over HTTP and keeps a live mirror of
// its item list over the push channel.
package client

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
	"path/filepath"
	"strings"

	"localshare/core"
	"localshare/handlers/api/items"
	"localshare/handlers/api/status"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// APIError is a non-success response from the host.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("host returned %d", e.StatusCode)
	}
	return fmt.Sprintf("host returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	base *url.URL
	http *http.Client
	fs   afero.Fs
}

type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithFs sets the local filesystem used for uploads and downloads.
func WithFs(fs afero.Fs) ClientOption {
	return func(c *Client) { c.fs = fs }
}

func New(baseURL string, opts ...ClientOption) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", baseURL)
	}

	c := &Client{base: base, http: http.DefaultClient, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// PushURL is the address of the native WebSocket endpoint.
func (c *Client) PushURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(body) > 0 {
		if decodeErr := json.Unmarshal(body, out); decodeErr != nil && resp.StatusCode == want {
			return fmt.Errorf("decode response: %w", decodeErr)
		}
	}
	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e items.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	var u items.UploadResponse
	if json.Unmarshal(body, &u) == nil && u.Message != "" {
		return u.Message
	}
	return strings.TrimSpace(string(body))
}

// Items fetches the full registry.
func (c *Client) Items(ctx context.Context) ([]core.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/items"), nil)
	if err != nil {
		return nil, err
	}
	var list []core.Item
	if err := c.do(req, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) SendText(ctx context.Context, text string) (core.Item, error) {
	payload, err := json.Marshal(items.TextRequest{Text: &text})
	if err != nil {
		return core.Item{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/text"), bytes.NewReader(payload))
	if err != nil {
		return core.Item{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp items.TextResponse
	if err := c.do(req, http.StatusCreated, &resp); err != nil {
		return core.Item{}, err
	}
	return resp.Item, nil
}

// Upload streams the local files at paths in one multipart request. A partial
// failure is not an error; inspect the returned Errors.
func (c *Client) Upload(ctx context.Context, paths ...string) (items.UploadResponse, error) {
	var resp items.UploadResponse
	if len(paths) == 0 {
		return resp, &core.ValidationError{Field: "files", Reason: "no files given"}
	}
	for _, p := range paths {
		info, err := c.fs.Stat(p)
		if err != nil {
			return resp, err
		}
		if info.IsDir() {
			return resp, &core.ValidationError{Field: "files", Reason: p + " is a directory"}
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeParts(mw, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), pr)
	if err != nil {
		pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.do(req, http.StatusCreated, &resp)
	pr.Close()
	return resp, err
}

func (c *Client) writeParts(mw *multipart.Writer, paths []string) error {
	for _, p := range paths {
		f, err := c.fs.Open(p)
		if err != nil {
			return err
		}
		part, err := mw.CreateFormFile(items.UploadField, filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return err
		}
	}
	return mw.Close()
}

// Download saves the stored file name into dir and returns the local path.
func (c *Client) Download(ctx context.Context, name, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/download/"+url.PathEscape(name)), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	target := filepath.Join(dir, filepath.Base(name))
	f, err := c.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		c.fs.Remove(target)
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"file": target,
		"size": humanize.Bytes(uint64(written)),
	}).Info("File downloaded")
	return target, nil
}

// AppData asks the host which address it advertises.
func (c *Client) AppData(ctx context.Context) (status.AppDataResponse, error) {
	var resp status.AppDataResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/app-data"), nil)
	if err != nil {
		return resp, err
	}
	err = c.do(req, http.StatusOK, &resp)
	return resp, err
}
