package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"jidhr/internal/arabic"
)

const corpusName = "qurancorpus"

// CorpusConfig configures the live corpus reference adapter.
type CorpusConfig struct {
	BaseURL   string
	RateLimit time.Duration // minimum interval between requests
	Timeout   time.Duration // per-request timeout
	Retry     RetryPolicy
}

// DefaultCorpusConfig returns the production defaults: the public corpus
// service, one request every two seconds, 30s timeout.
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{
		BaseURL:   "https://corpus.quran.com",
		RateLimit: 2 * time.Second,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryPolicy(),
	}
}

// Corpus fetches roots from the authoritative corpus morphology service.
// One word-by-word page covers a whole verse, so parsed verses are memoized:
// extracting every word of a verse costs a single request.
type Corpus struct {
	cfg    CorpusConfig
	log    *zap.Logger
	client *http.Client
	limit  *limiter

	mu     sync.Mutex
	verses map[string]map[int]string // "sura:aya" -> position -> root
}

// NewCorpus creates the live-reference adapter.
func NewCorpus(cfg CorpusConfig, log *zap.Logger) *Corpus {
	return &Corpus{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: cfg.Timeout},
		limit:  newLimiter(cfg.RateLimit),
		verses: map[string]map[int]string{},
	}
}

// Name implements Source.
func (c *Corpus) Name() string { return corpusName }

// Kind implements Source.
func (c *Corpus) Kind() Kind { return KindReference }

// Fetch implements Source. It requires a corpus location; the service is
// indexed by coordinate, not by surface form.
func (c *Corpus) Fetch(ctx context.Context, word string, loc *Location) Observation {
	start := time.Now()
	if loc == nil {
		return failure(corpusName, KindReference, word, start,
			fmt.Errorf("%w: corpus location required", ErrNotFound))
	}

	roots, err := c.verseRoots(ctx, loc.Sura, loc.Aya)
	if err != nil {
		return failure(corpusName, KindReference, word, start, err)
	}
	root, ok := roots[loc.Position]
	if !ok {
		return failure(corpusName, KindReference, word, start,
			fmt.Errorf("%w: position %d absent from verse %s", ErrNotFound, loc.Position, loc.VerseKey()))
	}
	return hit(corpusName, KindReference, word, root, start)
}

// verseRoots returns the position→root map for one verse, fetching and
// parsing the word-by-word page on first use.
func (c *Corpus) verseRoots(ctx context.Context, sura, aya int) (map[int]string, error) {
	key := fmt.Sprintf("%d:%d", sura, aya)
	c.mu.Lock()
	if cached, ok := c.verses[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var roots map[int]string
	err := withRetry(ctx, c.cfg.Retry, func() error {
		if err := c.limit.wait(ctx); err != nil {
			return err
		}
		var ferr error
		roots, ferr = c.fetchVerse(ctx, sura, aya)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.verses[key] = roots
	c.mu.Unlock()
	c.log.Debug("verse parsed",
		zap.String("verse", key), zap.Int("words", len(roots)))
	return roots, nil
}

func (c *Corpus) fetchVerse(ctx context.Context, sura, aya int) (map[int]string, error) {
	url := fmt.Sprintf("%s/wordbyword.jsp?chapter=%d&verse=%d", c.cfg.BaseURL, sura, aya)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return parseWordByWord(doc, sura, aya), nil
}

// locationRe matches the "(sura:aya:word)" labels on the word-by-word page.
// Word indexes on the page are 1-based.
var locationRe = regexp.MustCompile(`\((\d+):(\d+):(\d+)\)`)

// dictQueryRe pulls the Buckwalter root out of a dictionary link.
var dictQueryRe = regexp.MustCompile(`qurandictionary\.jsp\?q=([a-zA-Z*$<>&'|}]+)`)

// parseWordByWord extracts position→root from a word-by-word page. Each
// table cell that describes a word carries a location span and a dictionary
// link whose query parameter is the root in Buckwalter transliteration.
func parseWordByWord(doc *html.Node, sura, aya int) map[int]string {
	roots := map[int]string{}
	findAll(doc, "td")(func(cell *html.Node) bool {
		locText := ""
		href := ""
		walk(cell, func(n *html.Node) {
			if n.Type == html.ElementNode && n.Data == "span" && hasClass(n, "location") {
				locText = textOf(n)
			}
			if n.Type == html.ElementNode && n.Data == "a" {
				if h := attr(n, "href"); dictQueryRe.MatchString(h) {
					href = h
				}
			}
		})
		if locText == "" || href == "" {
			return true
		}
		m := locationRe.FindStringSubmatch(locText)
		if m == nil {
			return true
		}
		s, _ := strconv.Atoi(m[1])
		a, _ := strconv.Atoi(m[2])
		w, _ := strconv.Atoi(m[3])
		if s != sura || a != aya {
			return true
		}
		q := dictQueryRe.FindStringSubmatch(href)
		root := arabic.FromBuckwalter(q[1])
		if arabic.IsArabic(root) {
			roots[w-1] = root
		}
		return true
	})
	return roots
}

// ── HTML helpers shared by the scraping adapters ──

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// findAll yields every element node with the given tag, depth-first.
func findAll(n *html.Node, tag string) func(yield func(*html.Node) bool) {
	return func(yield func(*html.Node) bool) {
		var visit func(*html.Node) bool
		visit = func(node *html.Node) bool {
			if node.Type == html.ElementNode && node.Data == tag {
				if !yield(node) {
					return false
				}
			}
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if !visit(c) {
					return false
				}
			}
			return true
		}
		visit(n)
	}
}

// walk applies fn to n and all its descendants.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// hasClass reports whether the node's class attribute contains name.
func hasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// textOf returns the concatenated text content of a node, trimmed.
func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.TrimSpace(b.String())
}
