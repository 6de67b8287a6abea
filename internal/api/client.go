// Package api uploads exported plots to a plot viewer server.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/backplot/backplot/internal/program"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// UploadPath is the server route plot files are posted to.
const UploadPath = "/api/v1/plots"

// Client talks to the plot viewer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Op, e.Status)
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode}
	}
	return nil
}

// Healthcheck checks that the server answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return err
	}
	return c.do(req, "healthcheck")
}

// fields are the form values sent along with a plot file.
func (c *Client) fields(path string, p *program.Info) [][2]string {
	return [][2]string{
		{"secret", c.apiKey},
		{"filename", filepath.Base(path)},
		{"program", p.Name},
		{"units", p.Units},
		{"status", strconv.Itoa(p.Status)},
		{"loadedAt", p.LoadedAt.UTC().Format(time.RFC3339)},
		{"segments", strconv.Itoa(p.Recorded)},
	}
}

// Upload streams the export at path to the server as a multipart form.
func (c *Client) Upload(ctx context.Context, path string, p *program.Info) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening export: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			for _, f := range c.fields(path, p) {
				if err := form.WriteField(f[0], f[1]); err != nil {
					return err
				}
			}
			part, err := form.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return fmt.Errorf("copying export: %w", err)
			}
			return form.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, "upload")
}
