package midtier

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/voicekit/midtier-go/events"
	"github.com/voicekit/midtier-go/tool"
)

// processUpstreamFrame rewrites one upstream-to-client frame. The default
// for unrecognized event kinds is to pass the frame through unchanged. A
// nil frame with a nil error drops the event; a non-nil error is a
// protocol desynchronization and fatal for the session.
func (s *session) processUpstreamFrame(data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		s.logger.Warn("dropping malformed upstream frame")
		return nil, nil
	}

	switch gjson.GetBytes(data, "type").String() {
	case events.TypeSessionCreated:
		return s.redactSessionCreated(data), nil

	case events.TypeOutputItemAdded:
		switch gjson.GetBytes(data, "item.type").String() {
		case events.ItemText:
			text := gjson.GetBytes(data, "item.text").String()
			return s.setField(data, "item.text", SpeechMarkup(text)), nil
		case events.ItemFunctionCall:
			return nil, nil
		}
		return data, nil

	case events.TypeConversationItemCreated:
		return s.processConversationItem(data)

	case events.TypeFunctionCallArgsDelta, events.TypeFunctionCallArgsDone:
		// Clients never see raw argument streaming.
		return nil, nil

	case events.TypeOutputItemDone:
		if gjson.GetBytes(data, "item.type").String() != events.ItemFunctionCall {
			return data, nil
		}
		return nil, s.dispatchToolCall(data)

	case events.TypeResponseDone:
		return s.processResponseDone(data), nil
	}

	return data, nil
}

// redactSessionCreated strips the server-side prompt and tool
// configuration before the event reaches the client.
func (s *session) redactSessionCreated(data []byte) []byte {
	out := s.setField(data, "session.instructions", "")
	out = s.setField(out, "session.tools", []any{})
	out = s.setField(out, "session.voice", s.mt.cfg.voice)
	out = s.setField(out, "session.tool_choice", string(tool.ChoiceNone))
	out = s.setField(out, "session.max_response_output_tokens", nil)
	return out
}

func (s *session) processConversationItem(data []byte) ([]byte, error) {
	switch gjson.GetBytes(data, "item.type").String() {
	case events.ItemText:
		return s.gateUserText(data), nil

	case events.ItemFunctionCall:
		callID := gjson.GetBytes(data, "item.call_id").String()
		if _, ok := s.pending[callID]; !ok {
			s.pending[callID] = pendingToolCall{
				callID:         callID,
				previousItemID: gjson.GetBytes(data, "previous_item_id").String(),
			}
		}
		return nil, nil

	case events.ItemFunctionCallOutput:
		// Internal bookkeeping only.
		return nil, nil
	}

	return data, nil
}

// gateUserText runs the quality gate over a transcribed user input.
// Noise is dropped outright; low-confidence input is replaced by an
// assistant-authored request to repeat, sent back through the upstream
// pipeline as a model utterance.
func (s *session) gateUserText(data []byte) []byte {
	content := gjson.GetBytes(data, "item.content").String()
	confidence := 1.0
	if c := gjson.GetBytes(data, "item.confidence"); c.Exists() {
		confidence = c.Float()
	}

	verdict := EvaluateTranscript(content, confidence)
	s.logger.Info("user input gated",
		slog.String("verdict", verdict.String()),
		slog.Float64("confidence", confidence),
	)

	switch verdict {
	case VerdictRejectNoise:
		return nil

	case VerdictLowConfidence:
		s.sendUpstream(events.ConversationItemCreateEvent{
			BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
			Item: events.ConversationItem{
				Type:    events.ItemText,
				Role:    "assistant",
				Content: SpeechMarkup(repeatRequestText),
			},
		})
		return nil
	}

	return s.setField(data, "item.content", SpeechMarkup(content))
}

// dispatchToolCall resolves and invokes the tool named by a completed
// function call and injects its output into the upstream conversation.
// The triggering event itself is never forwarded to the client.
func (s *session) dispatchToolCall(data []byte) error {
	evt, err := events.Parse[events.ResponseOutputItemDoneEvent](data)
	if err != nil {
		return fmt.Errorf("parse function call completion: %w", err)
	}
	item := evt.Item

	call, ok := s.pending[item.CallID]
	if !ok {
		return fmt.Errorf("function call %q completed but was never announced", item.CallID)
	}

	reg, ok := s.mt.tools.Get(item.Name)
	if !ok {
		return fmt.Errorf("function call %q names unknown tool %q", item.CallID, item.Name)
	}

	result := s.invokeTool(reg, item)

	output := ""
	if result.Destination == tool.ToServer {
		output = result.Text
	}
	s.sendUpstream(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			Type:   events.ItemFunctionCallOutput,
			CallID: item.CallID,
			Output: output,
		},
	})

	if result.Destination == tool.ToClient {
		s.sendClient(events.MiddleTierToolResponseEvent{
			BaseEvent: events.BaseEvent{
				EventID:        evt.EventID,
				Type:           events.TypeMiddleTierToolResponse,
				PreviousItemID: &call.previousItemID,
			},
			ToolName:   item.Name,
			ToolResult: result.Text,
		})
	}

	return nil
}

// invokeTool runs the handler and converts every failure into a textual
// result routed to the model, so the model can verbalize the problem
// instead of the session faulting.
func (s *session) invokeTool(reg tool.Registration, item events.Item) tool.Result {
	var args map[string]any
	if item.Arguments != "" {
		if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
			s.logger.Error("tool arguments unparseable",
				slog.String("tool", item.Name), slog.Any("err", err))
			return tool.ServerResult(fmt.Sprintf("Error: tool %s received invalid arguments", item.Name))
		}
	}

	result, err := reg.Handler(s.ctx, args)
	if err != nil {
		s.logger.Error("tool call failed",
			slog.String("tool", item.Name), slog.Any("err", err))
		return tool.ServerResult(fmt.Sprintf("Error: %s", err))
	}

	s.logger.Info("tool call completed", slog.String("tool", item.Name))
	return result
}

// processResponseDone finishes a response turn. Outstanding tool calls
// mean the model was waiting on tool outputs, so the whole pending set is
// cleared and a continuation request is sent upstream; the tool outputs
// were already injected, so ordering is guaranteed. Independently, the
// response's output list is scrubbed of function calls and its text is
// normalized; the edited frame is forwarded only if anything changed.
func (s *session) processResponseDone(data []byte) []byte {
	if len(s.pending) > 0 {
		// Any chance tool calls could be interleaved across different
		// outstanding responses?
		clear(s.pending)
		s.sendUpstream(events.ResponseCreateEvent{
			BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
		})
	}

	outputs := gjson.GetBytes(data, "response.output").Array()
	out := data
	edited := false

	for i := len(outputs) - 1; i >= 0; i-- {
		path := fmt.Sprintf("response.output.%d", i)
		switch outputs[i].Get("type").String() {
		case events.ItemFunctionCall:
			var err error
			out, err = sjson.DeleteBytes(out, path)
			if err != nil {
				s.logger.Error("frame rewrite failed", slog.String("path", path), slog.Any("err", err))
				continue
			}
			edited = true
		case events.ItemText:
			text := outputs[i].Get("text").String()
			if normalized := SpeechMarkup(text); normalized != text {
				out = s.setField(out, path+".text", normalized)
				edited = true
			}
		}
	}

	if !edited {
		return data
	}
	return out
}
