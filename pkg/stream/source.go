package stream

import (
	"context"
	"fmt"
	"io"
)

// ScriptSource replays a fixed list of chunks; mainly for tests and
// demos.
type ScriptSource struct {
	chunks []string
	pos    int
	fail   error
}

// NewScriptSource builds a source that yields chunks in order, then
// failWith (when non-nil) or io.EOF.
func NewScriptSource(chunks []string, failWith error) *ScriptSource {
	return &ScriptSource{chunks: chunks, fail: failWith}
}

func (s *ScriptSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.chunks) {
		if s.fail != nil {
			return "", s.fail
		}
		return "", io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// EchoFactory is the built-in generation backend: it streams the prompt
// back in fixed-size chunks. Deployments wire a real provider by passing
// their own SourceFactory to the relay.
func EchoFactory(chunkSize int) SourceFactory {
	if chunkSize <= 0 {
		chunkSize = 16
	}
	return func(_ context.Context, _, _ string, data map[string]any) (ChunkSource, error) {
		prompt, _ := data["prompt"].(string)
		if prompt == "" {
			return nil, fmt.Errorf("prompt is empty")
		}
		var chunks []string
		for len(prompt) > chunkSize {
			chunks = append(chunks, prompt[:chunkSize])
			prompt = prompt[chunkSize:]
		}
		chunks = append(chunks, prompt)
		return NewScriptSource(chunks, nil), nil
	}
}
