package strategy

import (
	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/ledger"
	"github.com/hpungsan/leadcap/internal/submit"
)

// Request is one inbound turn from a host channel.
type Request struct {
	Channel      string            `json:"channel"`
	RawUtterance string            `json:"rawUtterance,omitempty"`
	Slots        map[string]string `json:"slots,omitempty"`
	Attributes   Attributes        `json:"attributes"`
	SessionID    string            `json:"sessionId"`
	IsNewSession bool              `json:"isNewSession,omitempty"`
	Kind         string            `json:"requestKindKey,omitempty"`
}

// Attributes are optional host-supplied signals for a turn.
type Attributes struct {
	ValidationJudgment *ledger.Judgment  `json:"validationJudgment,omitempty"`
	ChatResult         *ChatResult       `json:"chatResult,omitempty"`
	CurrentURL         string            `json:"currentUrl,omitempty"`
	FormName           string            `json:"formName,omitempty"`
	FormStep           string            `json:"formStep,omitempty"`
	FormData           map[string]string `json:"formData,omitempty"`
	// Aside answers a question the user interjected. It is spoken before
	// the next capture prompt.
	Aside  string `json:"aside,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// ChatResult is the upstream language model's reply.
type ChatResult struct {
	Text string `json:"text"`
}

// State is where the capture flow stands after a turn.
type State string

const (
	StateFirstTurn     State = "FIRST_TURN"
	StateAsking        State = "ASKING"
	StateAwaitingAside State = "AWAITING_HELP_ASIDE"
	StateRefused       State = "REFUSED"
	StateReady         State = "READY_TO_SUBMIT"
	StateSubmitted     State = "SUBMITTED"
	StateNotCapturing  State = "NOT_CAPTURING"
	StateForm          State = "FORM"
	StateGenerative    State = "GENERATIVE"
	StateEnded         State = "ENDED"
)

// Response is what the engine returns for a turn.
type Response struct {
	OutputSpeech string        `json:"outputSpeech"`
	Reprompt     string        `json:"reprompt,omitempty"`
	Displays     []Display     `json:"displays,omitempty"`
	Context      []string      `json:"context,omitempty"`
	Tag          string        `json:"tag"`
	State        State         `json:"state"`
	Availability *Availability `json:"availability,omitempty"`
	RefID        string        `json:"refId,omitempty"`
	SessionID    string        `json:"sessionId,omitempty"`
}

// Display is a visual payload: rendered HTML or a form definition.
type Display struct {
	Type string          `json:"type"`
	HTML string          `json:"html,omitempty"`
	Form *FormDefinition `json:"form,omitempty"`
}

const (
	DisplayHTML = "html"
	DisplayForm = "form"
)

// FormDefinition is the data contract the form widget renders.
type FormDefinition struct {
	Name  string          `json:"name"`
	Title string          `json:"title,omitempty"`
	Steps []FormStepShape `json:"steps"`
}

// FormStepShape is one page of a form. Posting a Submit step sends the
// captured lead.
type FormStepShape struct {
	Name   string      `json:"name"`
	Title  string      `json:"title,omitempty"`
	Submit bool        `json:"submit,omitempty"`
	Fields []FormField `json:"fields"`
}

// FormField is one input on a form page. Name is the slot the value fills.
type FormField struct {
	Name     string           `json:"name"`
	Label    string           `json:"label"`
	Type     contact.DataType `json:"type,omitempty"`
	Required bool             `json:"required,omitempty"`
	Enums    []string         `json:"enums,omitempty"`
}

// Availability is live scheduling metadata attached to form responses.
type Availability struct {
	JobType  *submit.JobType `json:"jobType,omitempty"`
	BusyDays []string        `json:"busyDays,omitempty"`
}
