package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kgellert/hodatay-client/internal/domain/user"
	"github.com/kgellert/hodatay-client/internal/lib/logger/sl"
)

var ErrUserNotFound = errors.New("user not found")

type Fetcher interface {
	GetUser(ctx context.Context, userID string) (user.Profile, error)
}

// Cache memoizes user profiles for the lifetime of a session. Entries are
// written once on first successful fetch and only overwritten by an explicit
// profile-update event. Nothing is ever evicted.
type Cache struct {
	fetcher Fetcher
	log     *slog.Logger

	mu       sync.RWMutex
	profiles map[string]user.Profile

	group singleflight.Group
}

func NewCache(fetcher Fetcher, log *slog.Logger) *Cache {
	return &Cache{
		fetcher:  fetcher,
		log:      log,
		profiles: make(map[string]user.Profile),
	}
}

func (c *Cache) Get(userID string) (user.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.profiles[userID]
	return p, ok
}

// Ensure resolves userID, fetching on a miss. Concurrent calls for the same
// id share one outstanding fetch. A failed fetch leaves the id unresolved so
// a later Ensure can try again.
func (c *Cache) Ensure(ctx context.Context, userID string) (user.Profile, error) {
	const op = "directory.Ensure"

	if p, ok := c.Get(userID); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		if p, ok := c.Get(userID); ok {
			return p, nil
		}

		p, err := c.fetcher.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.profiles[userID] = p
		c.mu.Unlock()

		return p, nil
	})
	if err != nil {
		c.log.Warn("profile fetch failed", slog.String("user_id", userID), sl.Err(err))
		return user.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return v.(user.Profile), nil
}

// Update overwrites an entry; this is the only mutation path after the first
// fetch (driven by userUpdated events).
func (c *Cache) Update(p user.Profile) {
	if p.ID == "" {
		return
	}

	c.mu.Lock()
	c.profiles[p.ID] = p
	c.mu.Unlock()
}

// DisplayName never fails: unresolved ids render as the placeholder.
func (c *Cache) DisplayName(userID string) string {
	if p, ok := c.Get(userID); ok && p.Fullname != "" {
		return p.Fullname
	}
	return user.PlaceholderName
}

func (c *Cache) AvatarURL(userID string) string {
	if p, ok := c.Get(userID); ok {
		return p.AvatarURL
	}
	return ""
}
