package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wordByWordPage mimics the corpus word-by-word layout: one cell per word
// with a location span and a dictionary link carrying the Buckwalter root.
const wordByWordPage = `<html><body><table>
<tr><td><span class="location">(1:1:1)</span>
  <a href="/qurandictionary.jsp?q=smw">bism</a></td></tr>
<tr><td><span class="location">(1:1:2)</span>
  <a href="/qurandictionary.jsp?q=Alh">Allah</a></td></tr>
<tr><td><span class="location">(1:1:3)</span>
  <a href="/qurandictionary.jsp?q=rHm">alrahman</a></td></tr>
<tr><td><span class="location">(2:1:1)</span>
  <a href="/qurandictionary.jsp?q=ktb">other verse, ignored</a></td></tr>
<tr><td>no location or link here</td></tr>
</table></body></html>`

func testCorpus(t *testing.T, handler http.Handler) (*Corpus, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := CorpusConfig{
		BaseURL:   srv.URL,
		RateLimit: time.Millisecond,
		Timeout:   time.Second,
		Retry:     RetryPolicy{MaxAttempts: 1, BaseBackoff: time.Millisecond, Factor: 2},
	}
	return NewCorpus(cfg, zap.NewNop()), srv
}

func TestCorpusFetch(t *testing.T) {
	var requests atomic.Int32
	c, _ := testCorpus(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/wordbyword.jsp", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("chapter"))
		assert.Equal(t, "1", r.URL.Query().Get("verse"))
		fmt.Fprint(w, wordByWordPage)
	}))

	obs := c.Fetch(context.Background(), "بسم", &Location{Sura: 1, Aya: 1, Position: 0})
	require.True(t, obs.Success, "error: %s", obs.Err)
	assert.Equal(t, "سمو", obs.Root)

	// Second word of the same verse: answered from the memoized parse.
	obs = c.Fetch(context.Background(), "الله", &Location{Sura: 1, Aya: 1, Position: 1})
	require.True(t, obs.Success)
	assert.Equal(t, "اله", obs.Root)

	obs = c.Fetch(context.Background(), "الرحمن", &Location{Sura: 1, Aya: 1, Position: 2})
	require.True(t, obs.Success)
	assert.Equal(t, "رحم", obs.Root)

	assert.Equal(t, int32(1), requests.Load(), "one verse = one request")
}

func TestCorpusPositionAbsent(t *testing.T) {
	c, _ := testCorpus(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, wordByWordPage)
	}))
	obs := c.Fetch(context.Background(), "غيب", &Location{Sura: 1, Aya: 1, Position: 7})
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Err, "absent from verse")
}

func TestCorpusRequiresLocation(t *testing.T) {
	c, _ := testCorpus(t, http.NotFoundHandler())
	obs := c.Fetch(context.Background(), "بسم", nil)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Err, "location required")
}

func TestCorpusServerErrorIsObservation(t *testing.T) {
	var requests atomic.Int32
	c, _ := testCorpus(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	c.cfg.Retry = RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond, Factor: 2}

	obs := c.Fetch(context.Background(), "بسم", &Location{Sura: 1, Aya: 1, Position: 0})
	assert.False(t, obs.Success)
	assert.Equal(t, int32(2), requests.Load(), "failed fetch is retried")
}
