package events

// Event type names sent toward the upstream realtime endpoint.
const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
)

// TypeMiddleTierToolResponse is a relay extension unknown to the upstream
// protocol: it carries a tool result to the human-facing client on a side
// channel. Clients that do not understand it are expected to ignore it.
const TypeMiddleTierToolResponse = "extension.middle_tier_tool_response"

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdate `json:"session"`
}

type ConversationItemCreateEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

// ConversationItem is the inner "item" object of an item-create request.
type ConversationItem struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Output  string `json:"output,omitempty"`
}

type ResponseCreateEvent struct {
	BaseEvent
	Response ResponseCreatePayload `json:"response"`
}

type ResponseCreatePayload struct {
	Modalities      []string `json:"modalities,omitempty"`
	Instructions    string   `json:"instructions,omitempty"`
	Voice           string   `json:"voice,omitempty"`
	Temperature     float64  `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
}

type MiddleTierToolResponseEvent struct {
	BaseEvent
	ToolName   string `json:"tool_name"`
	ToolResult string `json:"tool_result"`
}

// ErrorNotice is the single synthetic error frame delivered to a client
// when the upstream connection cannot be established.
type ErrorNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
