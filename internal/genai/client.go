// Package genai wraps the provider contract the LLM Stage Chain and Live
// Commentary Consumer submit against: a request-response multimodal
// endpoint with declared-function tool calling, and a live bidirectional
// session (frames+prompt in, PCM audio out).
package genai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// FunctionCall is the provider's structured-output payload: the name of the
// declared function it chose to call, and its arguments.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Client wraps one genai.Client bound to a single model name used for every
// request-response (non-live) stage submission.
type Client struct {
	inner *genai.Client
	model string
}

// New creates a Client authenticated with apiKey, targeting model for every
// GenerateFromVideo call.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: creating client: %w", err)
	}
	return &Client{inner: inner, model: model}, nil
}

// GenerateFromVideo submits videoBytes plus prompt with one declared
// function, and returns the function call the model made. Callers own
// retrying on a malformed/missing call; this method returns an error only on
// a transport/provider failure, never on a well-formed non-call response
// (returned FunctionCall.Name == "" in that case).
func (c *Client) GenerateFromVideo(ctx context.Context, videoBytes []byte, prompt string, fn *genai.FunctionDeclaration) (FunctionCall, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(videoBytes, "video/mp4"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{fn}}},
	}

	resp, err := c.inner.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return FunctionCall{}, fmt.Errorf("genai: generate_content: %w", err)
	}

	return extractFunctionCall(resp), nil
}

func extractFunctionCall(resp *genai.GenerateContentResponse) FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return FunctionCall{}
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			return FunctionCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args}
		}
	}
	return FunctionCall{}
}
