package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	vals  map[string]string
	calls int
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Get(_ context.Context, key string) (string, error) {
	s.calls++
	if v, ok := s.vals[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func TestResolve_PlainValuePassesThrough(t *testing.T) {
	r := NewResolverFrom()
	got, err := r.Resolve(context.Background(), "sk-plain")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", got)
}

func TestResolve_Reference(t *testing.T) {
	src := &countingSource{vals: map[string]string{"openai": "sk-123"}}
	r := NewResolverFrom(src)

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "secret:openai")
		require.NoError(t, err)
		assert.Equal(t, "sk-123", got)
	}
	assert.Equal(t, 1, src.calls, "second lookup should hit the cache")
}

func TestResolve_EmptyReference(t *testing.T) {
	_, err := NewResolverFrom().Resolve(context.Background(), "secret:")
	assert.Error(t, err)
}

func TestGet_FallsThroughSources(t *testing.T) {
	first := &countingSource{vals: map[string]string{}}
	second := &countingSource{vals: map[string]string{"k": "v"}}
	r := NewResolverFrom(first, second)

	got, err := r.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAll(t *testing.T) {
	r := NewResolverFrom(&countingSource{vals: map[string]string{"db": "hunter2"}})
	key, pass := "plain", "secret:db"
	require.NoError(t, r.ResolveAll(context.Background(), &key, &pass))
	assert.Equal(t, "plain", key)
	assert.Equal(t, "hunter2", pass)
}

func TestEnvSource(t *testing.T) {
	t.Setenv("QUILL_TEST_SECRET_A", "prefixed")
	t.Setenv("TEST_SECRET_B", "bare")
	s := NewEnvSource("")

	got, err := s.Get(context.Background(), "test_secret_a")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", got)

	got, err = s.Get(context.Background(), "test_secret_b")
	require.NoError(t, err)
	assert.Equal(t, "bare", got)

	_, err = s.Get(context.Background(), "test_secret_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openai: sk-file\nneo4j: pw\n"), 0o600))

	r, err := NewResolver(Config{Backend: "file", File: path})
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), "secret:openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-file", got)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestVaultSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/secret/data/quill", r.URL.Path)
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"anthropic":"sk-ant","port":7687}}}`))
	}))
	defer srv.Close()

	v, err := NewVaultSource(&VaultConfig{Address: srv.URL, Token: "root"})
	require.NoError(t, err)

	got, err := v.Get(context.Background(), "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", got)

	got, err = v.Get(context.Background(), "port")
	require.NoError(t, err)
	assert.Equal(t, "7687", got)

	_, err = v.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	bad, err := NewVaultSource(&VaultConfig{Address: srv.URL, Token: "wrong"})
	require.NoError(t, err)
	_, err = bad.Get(context.Background(), "anthropic")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestNewVaultSource_Validation(t *testing.T) {
	_, err := NewVaultSource(nil)
	assert.Error(t, err)
	_, err = NewVaultSource(&VaultConfig{Address: "http://x"})
	assert.Error(t, err)
}

func TestNewResolver_UnknownBackend(t *testing.T) {
	_, err := NewResolver(Config{Backend: "kms"})
	assert.Error(t, err)
}
