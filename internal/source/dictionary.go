package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DictionaryConfig configures one dictionary scraper. Every scraper gets its
// own config and therefore its own limiter and retry budget.
type DictionaryConfig struct {
	BaseURL   string
	RateLimit time.Duration
	Timeout   time.Duration
	Retry     RetryPolicy
}

// dictClient is the shared machinery of the dictionary scrapers: paced,
// retried HTTP fetch of a word page, parsed by a site-specific function.
type dictClient struct {
	name   string
	log    *zap.Logger
	client *http.Client
	limit  *limiter
	retry  RetryPolicy

	// url builds the lookup URL for a word; parse pulls the root out of
	// the fetched document.
	url   func(word string) string
	parse func(doc *html.Node) (string, error)
}

func (d *dictClient) Name() string { return d.name }

func (d *dictClient) Kind() Kind { return KindDictionary }

// Fetch implements Source for all dictionary scrapers.
func (d *dictClient) Fetch(ctx context.Context, word string, _ *Location) Observation {
	start := time.Now()
	var root string
	err := withRetry(ctx, d.retry, func() error {
		if err := d.limit.wait(ctx); err != nil {
			return err
		}
		var ferr error
		root, ferr = d.fetchRoot(ctx, word)
		return ferr
	})
	if err != nil {
		return failure(d.name, KindDictionary, word, start, err)
	}
	d.log.Debug("dictionary hit",
		zap.String("source", d.name), zap.String("word", word), zap.String("root", root))
	return hit(d.name, KindDictionary, word, root, start)
}

func (d *dictClient) fetchRoot(ctx context.Context, word string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url(word), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ar,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	}
	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return d.parse(doc)
}
