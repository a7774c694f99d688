package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/quill/internal/catalog"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/llm/llmtest"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

func runBatch(t *testing.T, acts *Activities, input BatchInput) *BatchOutput {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(acts)

	env.ExecuteWorkflow(BatchWorkflow, input)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out BatchOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	return &out
}

func TestBatchWorkflow(t *testing.T) {
	acts := &Activities{Catalog: catalog.New(), Provider: &llmtest.Provider{}}

	out := runBatch(t, acts, BatchInput{
		Template: "translate",
		BindingSets: []prompt.Bindings{
			{"language": "Italian", "text": "hi!"},
			{"language": "French", "text": "good night"},
			{"language": "German", "text": "thanks"},
		},
		Concurrency: 2,
	})

	require.Len(t, out.Items, 3)
	assert.Zero(t, out.Failed)
	for i, want := range []string{"hi!", "good night", "thanks"} {
		assert.Equal(t, i, out.Items[i].Index)
		assert.Equal(t, want, out.Items[i].Content)
	}
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "Translate the following from English into French"}, out.Items[1].Messages[0])
}

func TestBatchWorkflow_MissingVariableReportedPerItem(t *testing.T) {
	p := &llmtest.Provider{}
	acts := &Activities{Catalog: catalog.New(), Provider: p}

	out := runBatch(t, acts, BatchInput{
		Template: "translate",
		BindingSets: []prompt.Bindings{
			{"text": "hi!"},
			{"language": "Italian", "text": "hi!"},
		},
	})

	assert.Equal(t, 1, out.Failed)
	assert.Contains(t, out.Items[0].Error, "language")
	assert.Empty(t, out.Items[1].Error)
	assert.Equal(t, 1, p.Calls())
}

func TestBatchWorkflow_UnknownTemplate(t *testing.T) {
	acts := &Activities{Catalog: catalog.New(), Provider: &llmtest.Provider{}}
	out := runBatch(t, acts, BatchInput{Template: "nope", BindingSets: []prompt.Bindings{{}}})
	assert.Equal(t, 1, out.Failed)
	assert.Contains(t, out.Items[0].Error, "not found")
}

func TestBatchWorkflow_CompletionRetried(t *testing.T) {
	p := &llmtest.Provider{Errors: []error{errors.New("transient")}, Responses: []*llm.Response{{Content: "Ciao!"}}}
	acts := &Activities{Catalog: catalog.New(), Provider: p}

	out := runBatch(t, acts, BatchInput{
		Template:    "translate",
		BindingSets: []prompt.Bindings{{"language": "Italian", "text": "hi!"}},
	})
	assert.Zero(t, out.Failed)
	assert.Equal(t, "Ciao!", out.Items[0].Content)
	assert.Equal(t, 2, p.Calls())
}

func TestCompleteActivity_NoProvider(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(&Activities{Catalog: catalog.New()})

	_, err := env.ExecuteActivity((&Activities{}).CompleteActivity, []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	assert.Error(t, err)
}
