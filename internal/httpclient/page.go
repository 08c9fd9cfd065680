package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/fnsign/internal/common"
)

// maxBodySize caps how much of a response is read
const maxBodySize = 10 * 1024 * 1024

// Page is a fetched response body with its final URL
type Page struct {
	StatusCode int
	URL        *url.URL
	Body       []byte
}

// Text returns the body as a string
func (p *Page) Text() string {
	return string(p.Body)
}

// OK reports a 200 response
func (p *Page) OK() bool {
	return p.StatusCode == http.StatusOK
}

// Document parses the body as HTML
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", common.ErrMalformedResponse, err)
	}
	if p.URL != nil {
		doc.Url = p.URL
	}
	return doc, nil
}

// Get fetches rawURL
func Get(ctx context.Context, client *http.Client, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return do(client, req)
}

// PostForm submits form as application/x-www-form-urlencoded with optional extra headers
func PostForm(ctx context.Context, client *http.Client, rawURL string, form url.Values, header http.Header) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range header {
		req.Header[name] = values
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(client, req)
}

func do(client *http.Client, req *http.Request) (*Page, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrTransientNetwork, req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", common.ErrTransientNetwork, err)
	}

	return &Page{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL,
		Body:       body,
	}, nil
}
