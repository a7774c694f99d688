package temporal

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/quill/internal/catalog"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

// Activities holds the shared resources the batch activities use.
type Activities struct {
	Catalog  *catalog.Catalog
	Provider llm.Provider
	Options  *llm.RequestOptions
	Logger   zerolog.Logger
}

// RenderRequest selects a catalog template and its bindings.
type RenderRequest struct {
	Template string
	Bindings prompt.Bindings
}

// RenderActivity renders a catalog template. Unknown templates and missing
// variables are not retried.
func (a *Activities) RenderActivity(_ context.Context, req RenderRequest) ([]llm.Message, error) {
	entry, err := a.Catalog.Get(req.Template)
	if err != nil {
		return nil, sdktemporal.NewNonRetryableApplicationError(err.Error(), ErrTypeTemplateNotFound, err)
	}

	v, err := entry.Template.Render(req.Bindings)
	if err != nil {
		var missing *prompt.MissingVariableError
		if errors.As(err, &missing) {
			return nil, sdktemporal.NewNonRetryableApplicationError(err.Error(), ErrTypeMissingVariable, err)
		}
		return nil, err
	}
	return v.ToMessages(), nil
}

// CompleteActivity sends rendered messages to the model.
func (a *Activities) CompleteActivity(ctx context.Context, msgs []llm.Message) (*llm.Response, error) {
	if a.Provider == nil {
		return nil, sdktemporal.NewNonRetryableApplicationError("no model provider configured", ErrTypeNoProvider, nil)
	}
	resp, err := a.Provider.Complete(ctx, &llm.Prompt{Messages: msgs}, a.Options)
	if err != nil {
		a.Logger.Warn().Err(err).Str("provider", a.Provider.Name()).Msg("completion activity failed")
		return nil, err
	}
	return resp, nil
}
