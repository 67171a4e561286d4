package source

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const almaanyName = "almaany"

// DefaultAlmaanyConfig returns the production defaults for the AlMaany
// Arabic-Arabic dictionary scraper.
func DefaultAlmaanyConfig() DictionaryConfig {
	return DictionaryConfig{
		BaseURL:   "https://www.almaany.com/ar/dict/ar-ar",
		RateLimit: 1500 * time.Millisecond,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryPolicy(),
	}
}

// almaanyRootRe matches an explicit root label followed by a three- or
// four-letter Arabic root in a dictionary entry.
var almaanyRootRe = regexp.MustCompile(`(?:الجذر|الأصل|جذر)[\s:]+([\x{0627}-\x{064A}]{3,4})`)

// NewAlmaany creates the AlMaany dictionary scraper.
func NewAlmaany(cfg DictionaryConfig, log *zap.Logger) Source {
	return &dictClient{
		name:   almaanyName,
		log:    log,
		client: &http.Client{Timeout: cfg.Timeout},
		limit:  newLimiter(cfg.RateLimit),
		retry:  cfg.Retry,
		url: func(word string) string {
			return fmt.Sprintf("%s/%s/", cfg.BaseURL, url.PathEscape(word))
		},
		parse: parseAlmaany,
	}
}

// parseAlmaany scans definition blocks for an explicit root label. The page
// layout varies between entries, so it matches the label pattern anywhere in
// the text of div, span, and p elements.
func parseAlmaany(doc *html.Node) (string, error) {
	for _, tag := range []string{"div", "span", "p"} {
		var root string
		var found bool
		findAll(doc, tag)(func(n *html.Node) bool {
			if m := almaanyRootRe.FindStringSubmatch(textOf(n)); m != nil {
				root, found = m[1], true
				return false
			}
			return true
		})
		if found {
			return root, nil
		}
	}
	return "", fmt.Errorf("%w: no root label in entry", ErrNotFound)
}
