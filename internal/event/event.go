// Package event defines the events that flow through a voice agent pipeline
// and their JSON wire envelope.
//
// Every stage forwards the events it receives and appends its own, so a
// client watching the socket sees each intermediate result in order: the
// transcript, both translations, tool activity, the agent reply and finally
// the synthesized audio.
//
// Events are passed as pointers. A stage forwards the same pointer it
// received, so pass-through is identity-preserving.
package event

import (
	"time"
)

// Type is the wire tag of an event.
type Type string

// Wire tags.
const (
	TypeUserInput   Type = "user_input"
	TypeSTTChunk    Type = "stt_chunk"
	TypeSTTOutput   Type = "stt_output"
	TypeTranslation Type = "translation"
	TypeAgentChunk  Type = "agent_chunk"
	TypeToolCall    Type = "tool_call"
	TypeToolResult  Type = "tool_result"
	TypeAgentEnd    Type = "agent_end"
	TypeTTSChunk    Type = "tts_chunk"
	TypeTTSComplete Type = "tts_complete"
	TypeError       Type = "error"

	// TypeTurnEnd marks the end of a turn's input inside the pipeline. It is
	// never written to the client.
	TypeTurnEnd Type = "turn_end"
)

// Direction is the translation direction carried by [Translation].
type Direction string

const (
	IndicToEnglish Direction = "indic_to_en"
	EnglishToIndic Direction = "en_to_indic"
)

// Event is implemented by every pipeline event.
type Event interface {
	// Type returns the wire tag.
	Type() Type

	// Timestamp returns when the event was created. It carries Go's
	// monotonic clock reading.
	Timestamp() time.Time

	// Turn returns the turn the event belongs to, or nil.
	Turn() *Turn
}

// Meta is embedded in every event.
type Meta struct {
	At      time.Time
	TurnRef *Turn
}

// NewMeta stamps the current time and attaches t.
func NewMeta(t *Turn) Meta { return Meta{At: time.Now(), TurnRef: t} }

// Timestamp implements [Event].
func (m Meta) Timestamp() time.Time { return m.At }

// Turn implements [Event].
func (m Meta) Turn() *Turn { return m.TurnRef }

// UserInput carries one finalized utterance as a WAV container.
type UserInput struct {
	Meta
	Audio []byte
}

// STTChunk is a partial transcript. An empty transcript marks the start of
// transcription.
type STTChunk struct {
	Meta
	Transcript string
}

// STTOutput is the final transcript of an utterance.
type STTOutput struct {
	Meta
	Transcript string
	Language   string
}

// Translation is the output of either translation stage. An empty Text marks
// the start of a translation.
type Translation struct {
	Meta
	Text      string
	SrcLang   string
	TgtLang   string
	Direction Direction
}

// AgentChunk is partial agent output. An empty Text marks the start of agent
// processing.
type AgentChunk struct {
	Meta
	Text string
}

// ToolCall reports that the agent invoked a tool.
type ToolCall struct {
	Meta
	ID   string
	Name string
	Args string // JSON object as produced by the model
}

// ToolResult reports a tool's output back to the client.
type ToolResult struct {
	Meta
	CallID string
	Name   string
	Result string
}

// AgentEnd carries the agent's complete English reply.
type AgentEnd struct {
	Meta
	FullResponse string
}

// TTSChunk carries synthesized audio. An empty Audio marks the start of
// synthesis.
type TTSChunk struct {
	Meta
	Audio []byte
}

// TTSComplete signals that all audio for a turn has been emitted.
type TTSComplete struct {
	Meta
}

// TurnEnd closes a turn's input. Stages forward it like any other event; the
// synthesis stage answers it with [TTSComplete] once the turn's audio is out.
type TurnEnd struct {
	Meta
}

// Error reports a session-level problem to the client.
type Error struct {
	Meta
	Message string
}

func (*UserInput) Type() Type   { return TypeUserInput }
func (*STTChunk) Type() Type    { return TypeSTTChunk }
func (*STTOutput) Type() Type   { return TypeSTTOutput }
func (*Translation) Type() Type { return TypeTranslation }
func (*AgentChunk) Type() Type  { return TypeAgentChunk }
func (*ToolCall) Type() Type    { return TypeToolCall }
func (*ToolResult) Type() Type  { return TypeToolResult }
func (*AgentEnd) Type() Type    { return TypeAgentEnd }
func (*TTSChunk) Type() Type    { return TypeTTSChunk }
func (*TTSComplete) Type() Type { return TypeTTSComplete }
func (*TurnEnd) Type() Type     { return TypeTurnEnd }
func (*Error) Type() Type       { return TypeError }

var (
	_ Event = (*UserInput)(nil)
	_ Event = (*STTChunk)(nil)
	_ Event = (*STTOutput)(nil)
	_ Event = (*Translation)(nil)
	_ Event = (*AgentChunk)(nil)
	_ Event = (*ToolCall)(nil)
	_ Event = (*ToolResult)(nil)
	_ Event = (*AgentEnd)(nil)
	_ Event = (*TTSChunk)(nil)
	_ Event = (*TTSComplete)(nil)
	_ Event = (*TurnEnd)(nil)
	_ Event = (*Error)(nil)
)
