package worker

import (
	"context"

	"github.com/nikitavbv/sandbox/internal/domain/chat"
)

// ImageModel generates one image for a prompt, invoking onStep after every
// denoising step so the caller can report progress. Real diffusion
// inference is out of scope here; callers inject a real implementation or,
// in tests, a deterministic fake.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string, totalSteps int, onStep func(step int)) ([]byte, error)
}

// ChatModel produces the next assistant reply given a conversation history.
type ChatModel interface {
	GenerateReply(ctx context.Context, history []chat.Message) (string, error)
}
