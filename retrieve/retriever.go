// Package retrieve looks up documentation snippets for command-line tools.
// Man pages are chunked into paragraphs, vectorized by feature hashing and
// ranked against the query with an HNSW index. Per-tool indexes are cached
// with a TTL so repeated questions about the same tool stay cheap.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/coder/hnsw"
	"github.com/jellydator/ttlcache/v3"
)

const (
	maxChunks   = 200
	minChunkLen = 40
	maxChunkLen = 800
	lookupLimit = 10 * time.Second
	defaultDims = 256
	defaultTopK = 3
	snippetJoin = "\n\n"
)

// ErrNoTool reports a retrieval attempt without a tool name to key on.
var ErrNoTool = errors.New("retrieve: no tool name")

// Source produces raw documentation text for a tool.
type Source interface {
	Lookup(ctx context.Context, tool string) (string, error)
}

// ManSource reads documentation through the system man command.
type ManSource struct{}

// Lookup renders the tool's man page as plain text.
func (ManSource) Lookup(ctx context.Context, tool string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupLimit)
	defer cancel()

	cmd := exec.CommandContext(ctx, "man", tool)
	cmd.Env = append(cmd.Environ(), "MANPAGER=cat", "MANWIDTH=80")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("man %s: %w", tool, err)
	}
	return string(out), nil
}

// toolIndex holds one tool's chunked documentation and its vector graph.
type toolIndex struct {
	graph  *hnsw.Graph[int]
	chunks []string
}

// Retriever ranks documentation snippets against a query.
type Retriever struct {
	source Source
	dims   int
	cache  *ttlcache.Cache[string, *toolIndex]
}

// New creates a retriever over the given source. dims <= 0 picks the
// default vector size.
func New(source Source, ttl time.Duration, dims int) *Retriever {
	if dims <= 0 {
		dims = defaultDims
	}
	c := ttlcache.New[string, *toolIndex](
		ttlcache.WithTTL[string, *toolIndex](ttl),
		ttlcache.WithDisableTouchOnHit[string, *toolIndex](),
	)
	go c.Start()
	return &Retriever{source: source, dims: dims, cache: c}
}

// Close stops the cache expiration loop.
func (r *Retriever) Close() {
	r.cache.Stop()
}

// Get returns the topK documentation snippets most relevant to the query,
// joined into one block. The error is advisory: callers are expected to
// degrade to empty context.
func (r *Retriever) Get(ctx context.Context, tool, query string, topK int) (string, error) {
	if tool == "" {
		return "", ErrNoTool
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	idx, err := r.index(ctx, tool)
	if err != nil {
		return "", err
	}
	if len(idx.chunks) == 0 {
		return "", nil
	}

	neighbors := idx.graph.Search(hashVector(query, r.dims), topK)
	snippets := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		snippets = append(snippets, idx.chunks[n.Key])
	}
	return strings.Join(snippets, snippetJoin), nil
}

// index returns the cached index for a tool, building it on miss.
func (r *Retriever) index(ctx context.Context, tool string) (*toolIndex, error) {
	if item := r.cache.Get(tool); item != nil {
		return item.Value(), nil
	}

	text, err := r.source.Lookup(ctx, tool)
	if err != nil {
		return nil, err
	}

	idx := buildIndex(text, r.dims)
	r.cache.Set(tool, idx, ttlcache.DefaultTTL)
	slog.Debug("indexed documentation", "tool", tool, "chunks", len(idx.chunks))
	return idx, nil
}

// buildIndex chunks documentation text and inserts one node per chunk.
func buildIndex(text string, dims int) *toolIndex {
	chunks := chunk(text)
	idx := &toolIndex{graph: hnsw.NewGraph[int](), chunks: chunks}

	nodes := make([]hnsw.Node[int], 0, len(chunks))
	for i, c := range chunks {
		nodes = append(nodes, hnsw.MakeNode(i, hashVector(c, dims)))
	}
	if len(nodes) > 0 {
		idx.graph.Add(nodes...)
	}
	return idx
}

// chunk splits documentation into paragraph-sized snippets, dropping
// fragments too short to carry meaning and truncating oversized ones.
func chunk(text string) []string {
	paras := strings.Split(text, "\n\n")
	chunks := make([]string, 0, len(paras))
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if len(p) < minChunkLen {
			continue
		}
		if len(p) > maxChunkLen {
			p = p[:maxChunkLen]
		}
		chunks = append(chunks, p)
		if len(chunks) >= maxChunks {
			break
		}
	}
	return chunks
}
