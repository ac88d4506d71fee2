package events

import "fmt"

// Event type names produced by the upstream realtime endpoint.
const (
	TypeError                   = "error"
	TypeSessionCreated          = "session.created"
	TypeSessionUpdated          = "session.updated"
	TypeConversationItemCreated = "conversation.item.created"
	TypeOutputItemAdded         = "response.output_item.added"
	TypeOutputItemDone          = "response.output_item.done"
	TypeFunctionCallArgsDelta   = "response.function_call_arguments.delta"
	TypeFunctionCallArgsDone    = "response.function_call_arguments.done"
	TypeResponseDone            = "response.done"
)

// Item kinds carried inside conversation and response-output events.
const (
	ItemText               = "text"
	ItemFunctionCall       = "function_call"
	ItemFunctionCallOutput = "function_call_output"
)

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

// Item is an item announced by the upstream endpoint, either as part of
// the conversation or of a response's output. Which fields are populated
// depends on the item type.
type Item struct {
	ID         string  `json:"id,omitempty"`
	Type       string  `json:"type"`
	Status     string  `json:"status,omitempty"`
	Role       string  `json:"role,omitempty"`
	Text       string  `json:"text,omitempty"`
	Content    string  `json:"content,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Name       string  `json:"name,omitempty"`
	CallID     string  `json:"call_id,omitempty"`
	Arguments  string  `json:"arguments,omitempty"`
	Output     string  `json:"output,omitempty"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	Item Item `json:"item"`
}

type ResponseOutputItemAddedEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id,omitempty"`
	OutputIndex int    `json:"output_index,omitempty"`
	Item        Item   `json:"item"`
}

type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id,omitempty"`
	OutputIndex int    `json:"output_index,omitempty"`
	Item        Item   `json:"item"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

type ResponsePayload struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Output []Item `json:"output,omitempty"`
}
