package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/quill/internal/prompt"
)

func TestReadBindings_JSONLines(t *testing.T) {
	in := strings.NewReader(`{"language":"Italian","text":"hi"}
{"language":"French","text":"bye"}
`)
	sets, err := readBindings("-", in)
	require.NoError(t, err)
	assert.Equal(t, []prompt.Bindings{
		{"language": "Italian", "text": "hi"},
		{"language": "French", "text": "bye"},
	}, sets)
}

func TestReadBindings_Array(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.json")
	require.NoError(t, os.WriteFile(path, []byte(` [{"text":"a"},{"text":"b"}]`), 0o644))

	sets, err := readBindings(path, nil)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "b", sets[1]["text"])
}

func TestReadBindings_BadLine(t *testing.T) {
	_, err := readBindings("-", strings.NewReader("{\"text\":\"a\"}\n{oops}\n"))
	assert.ErrorContains(t, err, "line 2")
}
