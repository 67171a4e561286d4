package source

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const bahethName = "baheth"

// DefaultBahethConfig returns the production defaults for the Baheth
// dictionary scraper.
func DefaultBahethConfig() DictionaryConfig {
	return DictionaryConfig{
		BaseURL:   "https://www.baheth.info",
		RateLimit: 1500 * time.Millisecond,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryPolicy(),
	}
}

var (
	bahethLabelRe = regexp.MustCompile(`الجذر[\s:]*([\x{0627}-\x{064A}]{3,4})`)
	bahethRootRe  = regexp.MustCompile(`([\x{0627}-\x{064A}]{3,4})`)
)

// NewBaheth creates the Baheth dictionary scraper.
func NewBaheth(cfg DictionaryConfig, log *zap.Logger) Source {
	return &dictClient{
		name:   bahethName,
		log:    log,
		client: &http.Client{Timeout: cfg.Timeout},
		limit:  newLimiter(cfg.RateLimit),
		retry:  cfg.Retry,
		url: func(word string) string {
			return fmt.Sprintf("%s/all.jsp?term=%s", cfg.BaseURL, url.QueryEscape(word))
		},
		parse: parseBaheth,
	}
}

// parseBaheth looks for a جذر label in result cells. When the label and the
// root live in sibling cells the root is taken from the next cell.
func parseBaheth(doc *html.Node) (string, error) {
	for _, tag := range []string{"td", "div", "span"} {
		var root string
		var found bool
		findAll(doc, tag)(func(n *html.Node) bool {
			text := textOf(n)
			if !strings.Contains(text, "جذر") {
				return true
			}
			if m := bahethLabelRe.FindStringSubmatch(text); m != nil {
				root, found = m[1], true
				return false
			}
			for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
				if sib.Type != html.ElementNode {
					continue
				}
				if m := bahethRootRe.FindStringSubmatch(textOf(sib)); m != nil {
					root, found = m[1], true
					return false
				}
				break
			}
			return true
		})
		if found {
			return root, nil
		}
	}
	return "", fmt.Errorf("%w: no root in results", ErrNotFound)
}
