package tools

import (
	"context"
	"sync"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/prefs"
	"github.com/lunarhue/sidekick/internal/session"
	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
)

// Embedder turns texts into vectors for similarity search. Nil when
// no embedding host is configured.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Deps is everything the tool set executes against. State is the live
// session shared with the conversation loop; mutations go through mu
// because tool calls may run in parallel.
type Deps struct {
	Store    store.Store
	Slack    *slackapi.Client
	Resolver *format.Resolver
	Prefs    *prefs.Storage
	Sessions *session.Storage
	State    *session.State
	Status   *StatusService
	Embedder Embedder
	UserID   string
	LinkHost string

	mu sync.Mutex
}

// RegisterAll registers the full tool set on the registry.
func RegisterAll(r *Registry, deps *Deps) {
	r.Register(&AnalyzeTool{deps: deps})
	r.Register(&StatusTool{deps: deps})
	r.Register(&SearchTool{deps: deps})
	r.Register(&ContextTool{deps: deps})
	r.Register(&ThreadTool{deps: deps})
	r.Register(&PreferencesTool{deps: deps})
	r.Register(&SessionTool{deps: deps})
}

// saveSession persists the live session, serialized against parallel
// tool calls.
func (d *Deps) saveSession() error {
	return d.Sessions.Save(d.State)
}

func buildLink(host, channelID, ts, threadTs string) string {
	return slackapi.BuildMessageLink(host, channelID, ts, threadTs)
}
