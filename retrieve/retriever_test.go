package retrieve

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// fakeSource serves canned documentation and counts lookups.
type fakeSource struct {
	docs    map[string]string
	err     error
	lookups int
}

func (s *fakeSource) Lookup(ctx context.Context, tool string) (string, error) {
	s.lookups++
	if s.err != nil {
		return "", s.err
	}
	doc, ok := s.docs[tool]
	if !ok {
		return "", errors.New("no documentation for " + tool)
	}
	return doc, nil
}

const grepDoc = `GREP(1)

NAME
       grep - print lines that match patterns in the given input files

DESCRIPTION
       grep searches for PATTERN in each FILE and prints each line that
       matches. Use -r to search directories recursively instead of files.

       -i, --ignore-case ignores case distinctions in patterns and data,
       so "Foo" matches "foo" and "FOO" alike in every input line.

       -n, --line-number prefixes each line of output with its line number
       within the input file, counting from one for the first line.
`

func newTestRetriever(t *testing.T, src Source) *Retriever {
	t.Helper()
	r := New(src, time.Minute, 64)
	t.Cleanup(r.Close)
	return r
}

func TestGetReturnsRelevantSnippets(t *testing.T) {
	src := &fakeSource{docs: map[string]string{"grep": grepDoc}}
	r := newTestRetriever(t, src)

	got, err := r.Get(context.Background(), "grep", "search directories recursively", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "recursively") {
		t.Errorf("expected the recursive-search paragraph, got %q", got)
	}
}

func TestGetJoinsTopK(t *testing.T) {
	src := &fakeSource{docs: map[string]string{"grep": grepDoc}}
	r := newTestRetriever(t, src)

	got, err := r.Get(context.Background(), "grep", "ignore case line number", 2)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Split(got, "\n\n")); n != 2 {
		t.Errorf("expected 2 snippets joined by blank lines, got %d: %q", n, got)
	}
}

func TestGetCachesIndexPerTool(t *testing.T) {
	src := &fakeSource{docs: map[string]string{"grep": grepDoc}}
	r := newTestRetriever(t, src)

	for i := 0; i < 3; i++ {
		if _, err := r.Get(context.Background(), "grep", "case", 1); err != nil {
			t.Fatal(err)
		}
	}
	if src.lookups != 1 {
		t.Errorf("expected 1 source lookup, got %d", src.lookups)
	}
}

func TestGetEmptyToolFails(t *testing.T) {
	r := newTestRetriever(t, &fakeSource{})
	if _, err := r.Get(context.Background(), "", "anything", 1); !errors.Is(err, ErrNoTool) {
		t.Errorf("expected ErrNoTool, got %v", err)
	}
}

func TestGetPropagatesSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("man: command not found")}
	r := newTestRetriever(t, src)
	if _, err := r.Get(context.Background(), "grep", "case", 1); err == nil {
		t.Error("expected source error to propagate")
	}
}

func TestGetNoUsableChunks(t *testing.T) {
	src := &fakeSource{docs: map[string]string{"x": "short\n\ntiny"}}
	r := newTestRetriever(t, src)

	got, err := r.Get(context.Background(), "x", "anything", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected empty context for unusable docs, got %q", got)
	}
}

func TestChunkDropsShortAndCapsLong(t *testing.T) {
	long := strings.Repeat("x", 2000)
	chunks := chunk("tiny\n\n" + long + "\n\nthis paragraph is comfortably long enough to keep around")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != maxChunkLen {
		t.Errorf("expected long chunk capped at %d, got %d", maxChunkLen, len(chunks[0]))
	}
}

func TestHashVectorNormalized(t *testing.T) {
	vec := hashVector("grep prints matching lines", 64)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestHashVectorEmptyTextIsZero(t *testing.T) {
	for _, v := range hashVector("", 16) {
		if v != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}

func TestHashVectorDeterministic(t *testing.T) {
	a := hashVector("tar extract archive", 64)
	b := hashVector("tar extract archive", 64)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("expected identical vectors for identical text")
		}
	}
}
