// Package tts defines the text-to-speech collaborator contract.
package tts

import "context"

// Provider synthesizes one complete reply.
type Provider interface {
	// Synthesize returns audio for text as a self-contained container
	// (typically WAV). Implementations must be safe for concurrent use.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
