package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

func TestBuiltinTranslate(t *testing.T) {
	e, err := New().Get("translate")
	require.NoError(t, err)

	v, err := e.Template.Render(prompt.Bindings{"language": "Italian", "text": "hi!"})
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "Translate the following from English into Italian"},
		{Role: llm.RoleUser, Content: "hi!"},
	}, v.ToMessages())
}

func TestGet_NotFound(t *testing.T) {
	_, err := New().Get("missing")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestRegisterAndList(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(&Entry{Name: "joke", Template: prompt.FromString("Tell me a joke about {topic}")}))

	var names []string
	for _, e := range c.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"chat", "joke", "translate"}, names)

	assert.Error(t, c.Register(&Entry{Name: "broken"}))
	assert.Error(t, c.Register(&Entry{Template: prompt.FromString("x")}))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "summarize.yaml", `
name: summarize
description: Summarize a passage
parser: markdown
messages:
  - role: system
    content: Summarize in {sentences} sentences.
  - placeholder: examples
    optional: true
  - role: human
    content: "{passage}"
`)
	writeFile(t, dir, "pirate.hjson", `{
  # name comes from the file
  partials: { persona: "a pirate" }
  messages: [
    { role: "system", content: "You are {persona}." }
    { role: "ai", content: "Arr." }
    { role: "user", content: "{question}" }
  ]
}`)
	writeFile(t, dir, "notes.txt", "ignored")

	c := New()
	n, err := c.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sum, err := c.Get("summarize")
	require.NoError(t, err)
	assert.Equal(t, "markdown", sum.Parser)
	assert.Equal(t, []string{"passage", "sentences"}, sum.Template.InputVariables())
	assert.Equal(t, []string{"examples"}, sum.Template.Slots())
	assert.Equal(t, llm.RoleUser, sum.Template.Messages()[2].Role)

	pirate, err := c.Get("pirate")
	require.NoError(t, err)
	assert.Equal(t, []string{"question"}, pirate.Template.InputVariables())
	v, err := pirate.Template.Render(prompt.Bindings{"question": "Where is the treasure?"})
	require.NoError(t, err)
	msgs := v.ToMessages()
	assert.Equal(t, "You are a pirate.", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.yaml", "name: empty\nmessages: []\n")
	writeFile(t, dir, "badrole.yaml", "messages:\n  - role: narrator\n    content: hi\n")

	_, err := LoadFile(filepath.Join(dir, "empty.yaml"))
	var cfgErr *prompt.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = LoadFile(filepath.Join(dir, "badrole.yaml"))
	assert.ErrorContains(t, err, "narrator")
}
