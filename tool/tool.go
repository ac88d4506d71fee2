package tool

import "context"

type Choice string

const (
	ChoiceAuto Choice = "auto"
	ChoiceNone Choice = "none"
)

// Destination says where a tool result is routed. ToServer feeds the
// result back into the model's context; ToClient additionally surfaces it
// to the human-facing client on a side channel.
type Destination int

const (
	ToServer Destination = iota + 1
	ToClient
)

type Result struct {
	Text        string
	Destination Destination
}

func ServerResult(text string) Result {
	return Result{Text: text, Destination: ToServer}
}

func ClientResult(text string) Result {
	return Result{Text: text, Destination: ToClient}
}

// Handler executes a tool call with the arguments parsed from the model's
// function-call payload. Handlers may perform network I/O; a returned
// error is reported back to the model as a textual result, not as a
// protocol fault.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

type Tool struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Type                 string     `json:"type"`
	Properties           Properties `json:"properties"`
	Required             []string   `json:"required"`
	AdditionalProperties bool       `json:"additionalProperties"`
}

type Properties map[string]Property

type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}
