package midtier

import (
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/voicekit/midtier-go/events"
	"github.com/voicekit/midtier-go/tool"
)

// processClientFrame rewrites one client-to-upstream frame. Only session
// configuration updates are touched; everything else passes through
// unchanged. A nil return drops the frame.
func (s *session) processClientFrame(data []byte) []byte {
	if !gjson.ValidBytes(data) {
		s.logger.Warn("dropping malformed client frame")
		return nil
	}

	if gjson.GetBytes(data, "type").String() != events.TypeSessionUpdate {
		return data
	}

	cfg := s.mt.cfg
	out := data

	// Server-enforced settings override whatever the client asked for;
	// unset ones pass the client's value through untouched.
	if cfg.systemMessage != "" {
		out = s.setField(out, "session.instructions", cfg.systemMessage)
	}
	if cfg.temperature != nil {
		out = s.setField(out, "session.temperature", *cfg.temperature)
	}
	if cfg.maxTokens != nil {
		out = s.setField(out, "session.max_response_output_tokens", *cfg.maxTokens)
	}
	if cfg.disableAudio != nil {
		out = s.setField(out, "session.disable_audio", *cfg.disableAudio)
	}
	if cfg.voice != "" {
		out = s.setField(out, "session.voice", cfg.voice)
	}

	// Semantic VAD waits for complete phrases instead of reacting on a
	// fixed silence duration.
	if !gjson.GetBytes(out, "session.turn_detection").Exists() {
		out = s.setField(out, "session.turn_detection", events.TurnDetection{
			Type:           "semantic_vad",
			CreateResponse: true,
		})
	}

	// The tool catalog is always the server's; clients can neither define
	// nor see tools.
	choice := tool.ChoiceNone
	if s.mt.tools.Len() > 0 {
		choice = tool.ChoiceAuto
	}
	out = s.setField(out, "session.tool_choice", string(choice))
	out = s.setField(out, "session.tools", s.mt.tools.Schemas())

	return out
}

func (s *session) setField(data []byte, path string, value any) []byte {
	out, err := sjson.SetBytes(data, path, value)
	if err != nil {
		s.logger.Error("frame rewrite failed", slog.String("path", path), slog.Any("err", err))
		return data
	}
	return out
}
