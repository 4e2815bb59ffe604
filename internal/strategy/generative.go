package strategy

import (
	"context"
	"strings"

	"github.com/hpungsan/leadcap/internal/content"
)

// Generative passes the upstream model's reply through. The ledger is not
// used.
type Generative struct {
	d *Deps
}

func (g *Generative) Kind() Kind { return KindGenerative }

func (g *Generative) Run(_ context.Context, t *Turn) (*Response, error) {
	cr := t.Request.Attributes.ChatResult
	if cr == nil || strings.TrimSpace(cr.Text) == "" {
		g.d.log().Error("generative turn without chat result", "session_id", t.Session.ID())
		return &Response{
			OutputSpeech: content.ConfigErrorText,
			Tag:          content.TagConfigError,
			State:        StateGenerative,
		}, nil
	}
	return &Response{OutputSpeech: cr.Text, Tag: TagGenerative, State: StateGenerative}, nil
}
