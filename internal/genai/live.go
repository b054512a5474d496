package genai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// LiveSession wraps one bidirectional live-commentary session: frames and a
// prompt go in per turn, synthesized PCM audio comes out, terminated by a
// provider-reported turn-complete signal. One session serves the whole run;
// it connects once and disconnects when the Live Commentary Consumer's
// upstream queue ends.
type LiveSession struct {
	session *genai.Session
}

// ConnectLive opens a live session against model with responseModality set
// to audio output.
func (c *Client) ConnectLive(ctx context.Context, model string) (*LiveSession, error) {
	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	session, err := c.inner.Live.Connect(ctx, model, config)
	if err != nil {
		return nil, fmt.Errorf("genai: live connect: %w", err)
	}
	return &LiveSession{session: session}, nil
}

// SendTurn sends one window's frames and the commentary prompt as a single
// turn, signaling end-of-turn so the model begins responding.
func (s *LiveSession) SendTurn(ctx context.Context, frames [][]byte, prompt string) error {
	parts := make([]*genai.Part, 0, len(frames)+1)
	for _, f := range frames {
		parts = append(parts, genai.NewPartFromBytes(f, "image/jpeg"))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	return s.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		TurnComplete: true,
	})
}

// TurnResult is one window's accumulated audio output.
type TurnResult struct {
	PCM          []byte
	TurnComplete bool
}

// ReceiveChunk reads a single server message, returning any inline PCM
// audio it carried and whether the provider signaled turn completion. It
// respects ctx cancellation even though the underlying session.Receive call
// does not take a context, so a caller enforcing a per-window timeout or a
// chunk-count cap can bound each call independently.
func (s *LiveSession) ReceiveChunk(ctx context.Context) (pcm []byte, turnComplete bool, err error) {
	type result struct {
		msg *genai.LiveServerMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := s.session.Receive()
		ch <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, false, fmt.Errorf("genai: live receive: %w", r.err)
		}
		if r.msg.ServerContent == nil {
			return nil, false, nil
		}
		if r.msg.ServerContent.ModelTurn != nil {
			for _, part := range r.msg.ServerContent.ModelTurn.Parts {
				if part.InlineData != nil {
					pcm = append(pcm, part.InlineData.Data...)
				}
			}
		}
		return pcm, r.msg.ServerContent.TurnComplete, nil
	}
}

// ReceiveTurn reads server messages until the provider signals turn
// completion, accumulating inline PCM audio bytes along the way. Callers
// that need a soft chunk-count cap or a shorter per-call timeout should
// drive ReceiveChunk directly instead.
func (s *LiveSession) ReceiveTurn(ctx context.Context) (TurnResult, error) {
	var result TurnResult
	for {
		pcm, done, err := s.ReceiveChunk(ctx)
		if err != nil {
			return result, err
		}
		result.PCM = append(result.PCM, pcm...)
		if done {
			result.TurnComplete = true
			return result, nil
		}
	}
}

// Close disconnects the live session.
func (s *LiveSession) Close() error {
	return s.session.Close()
}
