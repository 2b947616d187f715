package worker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/nikitavbv/sandbox/internal/domain/chat"
)

// NoopImageModel satisfies ImageModel without running real inference; it
// exists so cmd/worker can start and exercise the rest of the
// lease/progress/upload path against a real dispatcher before a real model
// is wired in.
type NoopImageModel struct{}

// GenerateImage reports totalSteps synthetic steps and returns a
// placeholder payload: the text "stub-image: " followed by the prompt.
func (NoopImageModel) GenerateImage(ctx context.Context, prompt string, totalSteps int, onStep func(step int)) ([]byte, error) {
	for step := 0; step < totalSteps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		onStep(step)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "stub-image: %s", prompt)
	return buf.Bytes(), nil
}

// NoopChatModel satisfies ChatModel without running real inference.
type NoopChatModel struct{}

// GenerateReply echoes a fixed acknowledgement regardless of history.
func (NoopChatModel) GenerateReply(ctx context.Context, history []chat.Message) (string, error) {
	return "this worker has no chat model configured yet", nil
}
