// Package stt defines the speech-to-text collaborator contract.
//
// Transcription is request/response: one complete utterance in, one
// transcript out. Implementations are typically thin HTTP clients in front of
// a hosted ASR model and must be safe for concurrent use.
package stt

import "context"

// Provider transcribes a single utterance.
type Provider interface {
	// Transcribe returns the transcript of audio, a WAV container holding
	// mono 16-bit PCM. language is an ISO 639-1 code such as "kn".
	//
	// Network errors, non-success responses and timeouts are all reported as
	// errors; callers treat them the same way.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}
