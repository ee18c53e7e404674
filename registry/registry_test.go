package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestCanonicalName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"IssueSearchTool", "issue_search_tool"},
		{"HTTPFetcher", "http_fetcher"},
		{"wiki-pages", "wiki_pages"},
		{"Wiki", "wiki"},
		{"already_snake", "already_snake"},
		{"Board2Query", "board2_query"},
		{"  Spaced Name  ", "spaced_name"},
		{"__x__", "x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalName(tt.in))
		})
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := New[string]("tool", zap.NewNop())
	key := r.Register("IssueSearch", "impl-1")
	assert.Equal(t, "issue_search", key)

	got, ok := r.Lookup("issue_search")
	require.True(t, ok)
	assert.Equal(t, "impl-1", got)

	got, ok = r.Lookup("IssueSearch")
	require.True(t, ok)
	assert.Equal(t, "impl-1", got)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.False(t, r.Has("missing"))
}

func TestRegistry_LastWriteWins(t *testing.T) {
	t.Parallel()

	r := New[string]("agent", nil)
	r.Register("Researcher", "first")
	r.Register("researcher", "second")

	assert.Equal(t, 1, r.Len())
	got, _ := r.Lookup("researcher")
	assert.Equal(t, "second", got)
}

func TestRegistry_LastWriteWins_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New[int]("tool", nil)
		name := rapid.StringMatching(`[A-Za-z][A-Za-z0-9_]{0,12}`).Draw(t, "name")
		values := rapid.SliceOfN(rapid.Int(), 1, 10).Draw(t, "values")

		for _, v := range values {
			r.Register(name, v)
		}

		got, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("name %q not resolvable", name)
		}
		if want := values[len(values)-1]; got != want {
			t.Fatalf("got %d, want last registered %d", got, want)
		}
		if r.Len() != 1 {
			t.Fatalf("expected exactly one entry, got %d", r.Len())
		}
	})
}

func TestRegistry_AllSortedAndNames(t *testing.T) {
	t.Parallel()

	r := New[int]("tool", nil)
	r.Register("Wiki", 1)
	r.Register("Board", 2)
	r.Register("Issue", 3)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "board", all[0].Name)
	assert.Equal(t, 2, all[0].Implementation)
	assert.Equal(t, []string{"board", "issue", "wiki"}, r.Names())
}

func TestRegistry_InstallAndReset(t *testing.T) {
	t.Parallel()

	r := New[string]("agent", nil)
	installers := []Installer[string]{
		func(r *Registry[string]) { r.Register("Leader", "leader") },
		nil,
		func(r *Registry[string]) { r.Register("Writer", "writer") },
	}
	r.Install(installers...)
	assert.Equal(t, []string{"leader", "writer"}, r.Names())
	assert.Equal(t, "agent", r.Kind())

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("leader"))
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	t.Parallel()

	r := New[int]("tool", nil)
	for i := 0; i < 10; i++ {
		r.Register(fmt.Sprintf("tool%d", i), i)
	}

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				_, _ = r.Lookup(fmt.Sprintf("tool%d", i%10))
				_ = r.All()
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	assert.Equal(t, 10, r.Len())
}
