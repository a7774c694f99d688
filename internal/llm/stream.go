package llm

import (
	"context"
	"strings"
)

// StreamChunk is one fragment of a streamed completion. The last chunk has
// Done set and carries usage and stop information when the backend reports it.
type StreamChunk struct {
	Content      string `json:"content,omitempty"`
	Done         bool   `json:"done,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	Err          error  `json:"-"`
}

// Collect drains a stream into a single Response. It returns the first chunk
// error, or ctx.Err() if the context ends before the stream closes.
func Collect(ctx context.Context, ch <-chan StreamChunk) (*Response, error) {
	var (
		b    strings.Builder
		resp Response
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				resp.Content = b.String()
				return &resp, nil
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			b.WriteString(chunk.Content)
			if chunk.Model != "" {
				resp.Model = chunk.Model
			}
			if chunk.InputTokens > 0 {
				resp.InputTokens = chunk.InputTokens
			}
			if chunk.OutputTokens > 0 {
				resp.OutputTokens = chunk.OutputTokens
			}
			if chunk.StopReason != "" {
				resp.StopReason = chunk.StopReason
			}
		}
	}
}

// StreamFromResponse emits a completed response as a two-chunk stream. It lets
// backends without native streaming satisfy Provider.Stream.
func StreamFromResponse(resp *Response) <-chan StreamChunk {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: resp.Content, Model: resp.Model}
	ch <- StreamChunk{
		Done:         true,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		StopReason:   resp.StopReason,
	}
	close(ch)
	return ch
}
