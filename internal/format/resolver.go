package format

import (
	"context"
	"sync"
	"time"

	"github.com/lunarhue/sidekick/internal/store"
)

// Context carries the resolved ID→name maps for a batch of bodies.
type Context struct {
	Users    map[string]string
	Channels map[string]string
}

// UserName returns the resolved name or the ID itself.
func (c *Context) UserName(id string) string {
	if name, ok := c.Users[id]; ok {
		return name
	}
	return id
}

// ChannelName returns the resolved name or the ID itself.
func (c *Context) ChannelName(id string) string {
	if name, ok := c.Channels[id]; ok {
		return name
	}
	return id
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Lookup is the slice of the store the resolver needs.
type Lookup interface {
	GetUsersBatch(ctx context.Context, ids []string) ([]store.User, error)
	GetChannelsBatch(ctx context.Context, ids []string) ([]store.Channel, error)
}

// Resolver batch-resolves entity IDs to display names through the
// store, with a TTL cache so repeated tool calls in one conversation
// don't re-query the same IDs.
type Resolver struct {
	store Lookup
	ttl   time.Duration

	mu       sync.Mutex
	users    map[string]cacheEntry
	channels map[string]cacheEntry
}

const defaultResolverTTL = 5 * time.Minute

func NewResolver(st Lookup, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultResolverTTL
	}
	return &Resolver{
		store:    st,
		ttl:      ttl,
		users:    make(map[string]cacheEntry),
		channels: make(map[string]cacheEntry),
	}
}

// Resolve looks up every ID in entities, serving from cache where
// fresh and hitting the store in one batch per kind for the rest.
// IDs unknown to the store fall back to themselves.
func (r *Resolver) Resolve(ctx context.Context, entities *Entities) (*Context, error) {
	now := time.Now()
	out := &Context{
		Users:    make(map[string]string, len(entities.UserIDs)),
		Channels: make(map[string]string, len(entities.ChannelIDs)),
	}

	var missUsers, missChannels []string
	r.mu.Lock()
	for id := range entities.UserIDs {
		if e, ok := r.users[id]; ok && e.expiresAt.After(now) {
			out.Users[id] = e.value
		} else {
			missUsers = append(missUsers, id)
		}
	}
	for id := range entities.ChannelIDs {
		if e, ok := r.channels[id]; ok && e.expiresAt.After(now) {
			out.Channels[id] = e.value
		} else {
			missChannels = append(missChannels, id)
		}
	}
	r.mu.Unlock()

	if len(missUsers) > 0 {
		users, err := r.store.GetUsersBatch(ctx, missUsers)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		for _, u := range users {
			name := u.ResolveName()
			out.Users[u.ID] = name
			r.users[u.ID] = cacheEntry{value: name, expiresAt: now.Add(r.ttl)}
		}
		r.mu.Unlock()
	}
	if len(missChannels) > 0 {
		channels, err := r.store.GetChannelsBatch(ctx, missChannels)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		for _, ch := range channels {
			name := ch.Name
			if name == "" {
				name = ch.ID
			}
			out.Channels[ch.ID] = name
			r.channels[ch.ID] = cacheEntry{value: name, expiresAt: now.Add(r.ttl)}
		}
		r.mu.Unlock()
	}

	for id := range entities.UserIDs {
		if _, ok := out.Users[id]; !ok {
			out.Users[id] = id
		}
	}
	for id := range entities.ChannelIDs {
		if _, ok := out.Channels[id]; !ok {
			out.Channels[id] = id
		}
	}
	return out, nil
}

// ClearCache drops all cached entries.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.users = make(map[string]cacheEntry)
	r.channels = make(map[string]cacheEntry)
	r.mu.Unlock()
}
