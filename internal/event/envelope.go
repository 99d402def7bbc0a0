package event

import (
	"encoding/json"
	"fmt"
)

// header is the part of the envelope shared by every event.
type header struct {
	Type Type  `json:"type"`
	TS   int64 `json:"ts"`
}

func newHeader(ev Event) header {
	return header{Type: ev.Type(), TS: ev.Timestamp().UnixMilli()}
}

// Wire reports whether ev is sent to the client.
func Wire(ev Event) bool {
	return ev.Type() != TypeTurnEnd
}

// Binary returns the audio that follows ev's JSON envelope as a separate
// binary frame, or nil when ev carries no audio.
func Binary(ev Event) []byte {
	if c, ok := ev.(*TTSChunk); ok && len(c.Audio) > 0 {
		return c.Audio
	}
	return nil
}

// Encode renders ev as its JSON envelope: {"type": ..., "ts": <unix ms>,
// ...variant fields}.
func Encode(ev Event) ([]byte, error) {
	h := newHeader(ev)

	var v any
	switch e := ev.(type) {
	case *UserInput, *TTSComplete, *TurnEnd:
		v = h
	case *STTChunk:
		v = struct {
			header
			Transcript string `json:"transcript"`
		}{h, e.Transcript}
	case *STTOutput:
		v = struct {
			header
			Transcript string `json:"transcript"`
			Language   string `json:"language"`
		}{h, e.Transcript, e.Language}
	case *Translation:
		v = struct {
			header
			Text      string    `json:"text"`
			SrcLang   string    `json:"src_lang"`
			TgtLang   string    `json:"tgt_lang"`
			Direction Direction `json:"direction"`
		}{h, e.Text, e.SrcLang, e.TgtLang, e.Direction}
	case *AgentChunk:
		v = struct {
			header
			Text string `json:"text"`
		}{h, e.Text}
	case *ToolCall:
		v = struct {
			header
			ID   string `json:"id"`
			Name string `json:"name"`
			Args json.RawMessage `json:"args"`
		}{h, e.ID, e.Name, argsObject(e.Args)}
	case *ToolResult:
		v = struct {
			header
			CallID string `json:"tool_call_id"`
			Name   string `json:"name"`
			Result string `json:"result"`
		}{h, e.CallID, e.Name, e.Result}
	case *AgentEnd:
		v = struct {
			header
			FullResponse string `json:"full_response"`
		}{h, e.FullResponse}
	case *TTSChunk:
		v = struct {
			header
			AudioLength int `json:"audio_length"`
		}{h, len(e.Audio)}
	case *Error:
		type data struct {
			Message string `json:"message"`
		}
		v = struct {
			header
			Data data `json:"data"`
		}{h, data{e.Message}}
	default:
		return nil, fmt.Errorf("event: encode: unsupported event %T", ev)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("event: encode %s: %w", ev.Type(), err)
	}
	return b, nil
}

// argsObject returns tool arguments as a JSON object. Arguments that are not
// a valid JSON object become {}.
func argsObject(args string) json.RawMessage {
	raw := json.RawMessage(args)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return json.RawMessage("{}")
	}
	return raw
}
