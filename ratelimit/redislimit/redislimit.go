// Package redislimit is a ratelimit.Limiter shared by every server instance
// through Redis. Each identifier is a sorted set of event timestamps, trimmed
// and counted by one Lua script so check and record are a single step.
package redislimit

import (
	"context"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/ratelimit"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "authcore:rl:"

// KEYS[1] window log. ARGV: now ms, window ms, max, unique member.
// Returns {allowed, retry_after_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if max <= 0 or count >= max then
	local retry = window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if max > 0 and oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

type Limiter struct {
	client    redis.UniversalClient
	keyPrefix string
	nowFunc   func() time.Time
}

var _ ratelimit.Limiter = (*Limiter)(nil)

type Option func(*Limiter)

func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) {
		l.keyPrefix = prefix
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = now
	}
}

func New(client redis.UniversalClient, opts ...Option) *Limiter {
	l := &Limiter{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndRecord implements ratelimit.Limiter. A Redis failure is returned
// as store-style ErrUnavailable; callers decide whether to fail open.
func (l *Limiter) CheckAndRecord(ctx context.Context, identifier string, window time.Duration, max int) (ratelimit.Decision, error) {
	member, err := random.Token(random.MinTokenBytes)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	now := l.nowFunc().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.keyPrefix + identifier},
		now, window.Milliseconds(), max, member).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, errors.Wrap(errs.Unavailable(err), "[redislimit.CheckAndRecord]")
	}
	if len(res) != 2 {
		return ratelimit.Decision{}, errors.Errorf("[redislimit.CheckAndRecord] unexpected script result %v", res)
	}
	if res[0] == 1 {
		return ratelimit.Decision{Allowed: true}, nil
	}
	return ratelimit.Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

// Reset implements ratelimit.Limiter.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.client.Del(ctx, l.keyPrefix+identifier).Err(); err != nil {
		return errors.Wrap(errs.Unavailable(err), "[redislimit.Reset]")
	}
	return nil
}
