package routing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyz/loom/internal/errors"
)

func mustRegister(t *testing.T, r *Registry, verb, template, handler string) *Entry {
	t.Helper()
	entry, err := r.Register(Spec{Verb: verb, Template: template, Handler: handler, Target: handler})
	require.NoError(t, err)
	return entry
}

func TestRegistry_ExactAndPatternTables(t *testing.T) {
	r := NewRegistry()

	exact := mustRegister(t, r, "GET", "/posts", "PostController.List")
	pattern := mustRegister(t, r, "GET", "/posts/{id}", "PostController.Get")

	assert.Equal(t, ExactRoute, exact.Kind)
	assert.Equal(t, "GET/posts", exact.Key)
	assert.Equal(t, PatternRoute, pattern.Kind)
	assert.Equal(t, "GET/posts/{id}", pattern.Key)
	assert.Equal(t, 2, r.Len())

	m, ok := r.Lookup("GET", "/posts", "")
	require.True(t, ok)
	assert.Same(t, exact, m.Entry)
	assert.Empty(t, m.Values)

	m, ok = r.Lookup("GET", "/posts/42", "")
	require.True(t, ok)
	assert.Same(t, pattern, m.Entry)
	assert.Equal(t, []string{"42"}, m.Values)

	_, ok = r.Lookup("DELETE", "/posts/42", "")
	assert.False(t, ok)
}

func TestRegistry_DuplicateExactKey(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "GET", "/posts", "PostController.List")

	_, err := r.Register(Spec{Verb: "GET", Template: "/posts", Handler: "ArchiveController.List"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.AmbiguousMappingErrorCode))

	var mapping *errors.AmbiguousMappingError
	require.ErrorAs(t, err, &mapping)
	assert.Equal(t, "GET/posts", mapping.Key)
	assert.Equal(t, "PostController.List", mapping.Existing)
	assert.Equal(t, "ArchiveController.List", mapping.Handler)

	// a different verb is a different key
	mustRegister(t, r, "POST", "/posts", "PostController.Create")
}

func TestRegistry_DuplicatePatternsAreNotRejected(t *testing.T) {
	r := NewRegistry()
	first := mustRegister(t, r, "GET", "/posts/{id}", "First.Get")
	mustRegister(t, r, "GET", "/posts/{slug}", "Second.Get")

	m, ok := r.Lookup("GET", "/posts/hello", "")
	require.True(t, ok)
	assert.Same(t, first, m.Entry)
}

func TestRegistry_ExactWinsOverPattern(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "GET", "/posts/{id}/comments", "CommentController.ForPost")
	static := mustRegister(t, r, "GET", "/posts/static/comments", "CommentController.Static")

	m, ok := r.Lookup("GET", "/posts/static/comments", "")
	require.True(t, ok)
	assert.Same(t, static, m.Entry)

	m, ok = r.Lookup("GET", "/posts/9/comments", "")
	require.True(t, ok)
	assert.Equal(t, "CommentController.ForPost", m.Entry.Handler)
	assert.Equal(t, []string{"9"}, m.Values)
}

func TestRegistry_FirstRegisteredPatternWins(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "GET", "/{section}/latest", "Sections.Latest")
	mustRegister(t, r, "GET", "/posts/{id}", "Posts.Get")

	m, ok := r.Lookup("GET", "/posts/latest", "")
	require.True(t, ok)
	assert.Equal(t, "Sections.Latest", m.Entry.Handler)
	assert.Equal(t, []string{"posts"}, m.Values)
}

func TestRegistry_ExactLookupWithQuery(t *testing.T) {
	r := NewRegistry()
	bare := mustRegister(t, r, "GET", "/posts", "Posts.List")
	withQuery := mustRegister(t, r, "GET", "/posts?draft=true", "Posts.Drafts")

	m, ok := r.Lookup("GET", "/posts", "draft=true")
	require.True(t, ok)
	assert.Same(t, withQuery, m.Entry)

	// falls back to the bare key when the full key is unknown
	m, ok = r.Lookup("GET", "/posts", "page=2")
	require.True(t, ok)
	assert.Same(t, bare, m.Entry)
}

func TestRegistry_LegacyQueryTemplate(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "GET", "/comments?postId={postId}", "Comments.ByPost")

	m, ok := r.Lookup("GET", "/comments", "postId=3")
	require.True(t, ok)
	assert.Equal(t, []string{"3"}, m.Values)

	_, ok = r.Lookup("GET", "/comments", "")
	assert.False(t, ok)

	_, ok = r.Lookup("GET", "/comments", "userId=3")
	assert.False(t, ok)
}

func TestRegistry_Freeze(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "GET", "/health", "Health.Check")
	assert.False(t, r.Frozen())

	r.Freeze()
	assert.True(t, r.Frozen())

	_, err := r.Register(Spec{Verb: "GET", Template: "/late", Handler: "Late.Get"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.RegistrationErrorCode))

	_, ok := r.Lookup("GET", "/health", "")
	assert.True(t, ok)
}

func TestRegistry_InvalidTemplate(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Spec{Verb: "GET", Template: "/files/{name}.json", Handler: "Files.Get"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.RegistrationErrorCode))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Entries(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "GET", "/posts/{id}", "Posts.Get")
	mustRegister(t, r, "GET", "/posts", "Posts.List")
	mustRegister(t, r, "POST", "/posts", "Posts.Create")

	var keys []string
	for _, entry := range r.Entries() {
		keys = append(keys, entry.Key)
	}
	assert.Equal(t, []string{"GET/posts", "POST/posts", "GET/posts/{id}"}, keys)
}

func TestRegistry_LookupCache(t *testing.T) {
	r := NewRegistry()
	r.EnableLookupCache(time.Minute)
	pattern := mustRegister(t, r, "GET", "/posts/{id}", "Posts.Get")

	for i := 0; i < 3; i++ {
		m, ok := r.Lookup("GET", "/posts/7", "")
		require.True(t, ok)
		assert.Same(t, pattern, m.Entry)
		assert.Equal(t, []string{"7"}, m.Values)
	}

	for i := 0; i < 2; i++ {
		_, ok := r.Lookup("GET", "/users/7", "")
		assert.False(t, ok)
	}
	assert.Equal(t, 2, r.lookups.ItemCount())
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := NewRegistry()
	r.EnableLookupCache(time.Minute)
	mustRegister(t, r, "GET", "/posts/{id}", "Posts.Get")
	r.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m, ok := r.Lookup("GET", "/posts/1", "")
				if assert.True(t, ok) {
					assert.Equal(t, []string{"1"}, m.Values)
				}
			}
		}()
	}
	wg.Wait()
}
