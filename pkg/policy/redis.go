package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/bedrock-auth/pkg/policy"

// DefaultHealthTimeout bounds [RedisStore.Health] when the caller's context
// has no deadline. A health check that hangs longer than this is reported
// as unavailable rather than blocking the readiness endpoint.
const DefaultHealthTimeout = 5 * time.Second

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// RedisConfig configures the Redis connection used for access lists.
//
// Fields are loaded with the config package: defaults from envDefault tags,
// then the yaml/json file, then environment variables. When nested under
// ServerConfig the env tags gain the REDIS_ prefix, e.g. AUTHD_REDIS_ADDR.
type RedisConfig struct {
	// Addr is the Redis server address in host:port form.
	// Default: "localhost:6379".
	Addr string `json:"addr" yaml:"addr" env:"ADDR" envDefault:"localhost:6379"`

	// Password is the optional AUTH password. It is never logged.
	Password string `json:"password" yaml:"password" env:"PASSWORD"`

	// DB is the logical database index. Must not be negative.
	// Default: 0.
	DB int `json:"db" yaml:"db" env:"DB" envDefault:"0"`

	// KeyPrefix namespaces every key the store writes, so several servers
	// can share one Redis without seeing each other's lists.
	// Default: "authd".
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX" envDefault:"authd"`

	// DialTimeout bounds establishing a new connection.
	// Default: 5s.
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT" envDefault:"5s"`
}

// Validate checks the fields [NewRedisStore] depends on.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: Addr is empty
//   - [sserr.CodeValidation]: DB is negative
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return sserr.New(sserr.CodeValidationRequired, "policy: redis addr is required")
	}
	if c.DB < 0 {
		return sserr.Validation("policy: redis db must not be negative")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Cmdable is the subset of go-redis commands the store uses. It is
// satisfied by [*redis.Client] and lets tests inject any compatible client
// through [NewRedisStoreFromClient].
type Cmdable interface {
	// HSet sets field-value pairs in a hash stored at key.
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd

	// HGetAll returns all fields and values in a hash.
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd

	// HDel deletes one or more fields from a hash.
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd

	// SAdd adds one or more members to a set.
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd

	// SMembers returns all members of a set.
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd

	// SRem removes one or more members from a set.
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd

	// Set sets the string value of a key with an optional expiration.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd

	// Get returns the string value of a key.
	Get(ctx context.Context, key string) *redis.StringCmd

	// Ping pings the Redis server.
	Ping(ctx context.Context) *redis.StatusCmd

	// Close closes the client connection.
	Close() error
}

// Compile-time check that *redis.Client satisfies Cmdable.
var _ Cmdable = (*redis.Client)(nil)

// RedisStore persists access lists in Redis:
//
//	<prefix>:bans:name          hash  lowercased name -> JSON BanEntry
//	<prefix>:bans:ip            hash  address -> JSON BanEntry
//	<prefix>:whitelist          set   lowercased names
//	<prefix>:whitelist:enabled  string "1" or "0"
//
// A RedisStore is safe for concurrent use. Its methods block on the
// network and must not be called from the main loop.
type RedisStore struct {
	cmdable Cmdable
	prefix  string
	db      int
	tracer  trace.Tracer
}

// NewRedisStore validates cfg, connects to Redis and verifies the
// connection with a ping. The caller must call [RedisStore.Close] when the
// store is no longer needed.
//
// Error codes returned:
//   - [sserr.CodeValidation], [sserr.CodeValidationRequired]: invalid configuration
//   - [sserr.CodeUnavailableStore]: Redis did not answer the ping
//
// Example:
//
//	store, err := policy.NewRedisStore(ctx, cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	lists, err := store.Load(ctx)
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableStore, "policy: failed to connect to redis")
	}
	return NewRedisStoreFromClient(rdb, cfg), nil
}

// NewRedisStoreFromClient wraps an existing client without pinging it.
// An empty KeyPrefix falls back to "authd". Tests use this with a client
// pointed at miniredis.
func NewRedisStoreFromClient(c Cmdable, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "authd"
	}
	return &RedisStore{
		cmdable: c,
		prefix:  prefix,
		db:      cfg.DB,
		tracer:  otel.Tracer(tracerName),
	}
}

func (s *RedisStore) key(parts string) string {
	return s.prefix + ":" + parts
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Load reads every list and returns a snapshot suitable for
// [Holder.Store]. A missing whitelist flag means the whitelist is off.
//
// Error codes returned:
//   - [sserr.CodeUnavailableStore]: Redis failed
//   - [sserr.CodeTimeout]: ctx expired
//   - [sserr.CodeUnexpectedJSON]: a stored ban entry is corrupt
func (s *RedisStore) Load(ctx context.Context) (*Lists, error) {
	ctx, span := s.startSpan(ctx, "Load", "HGETALL bans; SMEMBERS whitelist")
	lists, err := s.load(ctx)
	finishSpan(span, err)
	return lists, err
}

func (s *RedisStore) load(ctx context.Context) (*Lists, error) {
	nameBans, ipBans, err := s.readBans(ctx)
	if err != nil {
		return nil, err
	}
	members, enabled, err := s.readWhitelist(ctx)
	if err != nil {
		return nil, err
	}
	return NewLists(nameBans, ipBans, members, enabled), nil
}

// Bans returns every stored name and IP ban, expired ones included.
func (s *RedisStore) Bans(ctx context.Context) (names, ips []BanEntry, err error) {
	ctx, span := s.startSpan(ctx, "Bans", "HGETALL bans")
	names, ips, err = s.readBans(ctx)
	finishSpan(span, err)
	return names, ips, err
}

// WhitelistMembers returns the whitelisted names and whether the
// whitelist is enforced.
func (s *RedisStore) WhitelistMembers(ctx context.Context) ([]string, bool, error) {
	ctx, span := s.startSpan(ctx, "WhitelistMembers", "SMEMBERS whitelist")
	members, enabled, err := s.readWhitelist(ctx)
	finishSpan(span, err)
	return members, enabled, err
}

func (s *RedisStore) readBans(ctx context.Context) ([]BanEntry, []BanEntry, error) {
	names, err := s.bans(ctx, s.key("bans:name"))
	if err != nil {
		return nil, nil, err
	}
	ips, err := s.bans(ctx, s.key("bans:ip"))
	if err != nil {
		return nil, nil, err
	}
	return names, ips, nil
}

func (s *RedisStore) readWhitelist(ctx context.Context) ([]string, bool, error) {
	members, err := s.cmdable.SMembers(ctx, s.key("whitelist")).Result()
	if err != nil {
		return nil, false, wrapError(err, "policy: failed to read whitelist")
	}
	enabled, err := s.cmdable.Get(ctx, s.key("whitelist:enabled")).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, wrapError(err, "policy: failed to read whitelist flag")
	}
	return members, enabled == "1", nil
}

// bans decodes one ban hash. The hash field is authoritative for the
// target, whatever the JSON says.
func (s *RedisStore) bans(ctx context.Context, key string) ([]BanEntry, error) {
	raw, err := s.cmdable.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapError(err, "policy: failed to read bans")
	}
	out := make([]BanEntry, 0, len(raw))
	for target, data := range raw {
		var b BanEntry
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeUnexpectedJSON, "policy: corrupt ban entry %q in %s", target, key)
		}
		b.Target = target
		out = append(out, b)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// BanName bans a player name. The name is stored lowercased, so bans match
// regardless of the case a client logs in with. An existing ban for the
// same name is replaced.
//
// Example:
//
//	err := store.BanName(ctx, policy.BanEntry{Target: "Griefer", Reason: "griefing", Source: "ops"})
func (s *RedisStore) BanName(ctx context.Context, b BanEntry) error {
	b.Target = normalizeName(b.Target)
	return s.putBan(ctx, "BanName", s.key("bans:name"), b)
}

// BanIP bans an address. The address is stored as given.
func (s *RedisStore) BanIP(ctx context.Context, b BanEntry) error {
	return s.putBan(ctx, "BanIP", s.key("bans:ip"), b)
}

func (s *RedisStore) putBan(ctx context.Context, op, key string, b BanEntry) error {
	if b.Target == "" {
		return sserr.New(sserr.CodeValidationRequired, "policy: ban target is required")
	}
	if b.Created.IsZero() {
		b.Created = time.Now().UTC()
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "policy: failed to encode ban")
	}
	ctx, span := s.startSpan(ctx, op, fmt.Sprintf("HSET %s %s", key, b.Target))
	err = s.cmdable.HSet(ctx, key, b.Target, string(data)).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "policy: failed to store ban")
	}
	return nil
}

// PardonName lifts a name ban. It reports whether a ban existed.
func (s *RedisStore) PardonName(ctx context.Context, name string) (bool, error) {
	return s.delBan(ctx, "PardonName", s.key("bans:name"), normalizeName(name))
}

// PardonIP lifts an IP ban. It reports whether a ban existed.
func (s *RedisStore) PardonIP(ctx context.Context, ip string) (bool, error) {
	return s.delBan(ctx, "PardonIP", s.key("bans:ip"), ip)
}

func (s *RedisStore) delBan(ctx context.Context, op, key, target string) (bool, error) {
	ctx, span := s.startSpan(ctx, op, fmt.Sprintf("HDEL %s %s", key, target))
	n, err := s.cmdable.HDel(ctx, key, target).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "policy: failed to remove ban")
	}
	return n > 0, nil
}

// Whitelist adds names to the whitelist. Calling it with no names is a
// no-op; Redis rejects SADD without members.
func (s *RedisStore) Whitelist(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	members := whitelistMembers(names)
	ctx, span := s.startSpan(ctx, "Whitelist", "SADD whitelist")
	err := s.cmdable.SAdd(ctx, s.key("whitelist"), members...).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "policy: failed to update whitelist")
	}
	return nil
}

// Unwhitelist removes names from the whitelist. Calling it with no names
// is a no-op.
func (s *RedisStore) Unwhitelist(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	members := whitelistMembers(names)
	ctx, span := s.startSpan(ctx, "Unwhitelist", "SREM whitelist")
	err := s.cmdable.SRem(ctx, s.key("whitelist"), members...).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "policy: failed to update whitelist")
	}
	return nil
}

func whitelistMembers(names []string) []interface{} {
	members := make([]interface{}, len(names))
	for i, n := range names {
		members[i] = normalizeName(n)
	}
	return members
}

// SetWhitelistEnabled turns whitelist enforcement on or off. Servers pick
// the change up on their next reload.
func (s *RedisStore) SetWhitelistEnabled(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	ctx, span := s.startSpan(ctx, "SetWhitelistEnabled", "SET whitelist:enabled "+val)
	err := s.cmdable.Set(ctx, s.key("whitelist:enabled"), val, 0).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "policy: failed to update whitelist flag")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Health and lifecycle
// ---------------------------------------------------------------------------

// Health pings Redis, applying [DefaultHealthTimeout] if ctx has no
// deadline. It backs the readiness endpoint of the serve command.
func (s *RedisStore) Health(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	ctx, span := s.startSpan(ctx, "Health", "PING")
	err := s.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableStore, "policy: redis health check failed")
	}
	return nil
}

// Close releases the connection.
func (s *RedisStore) Close() error {
	return s.cmdable.Close()
}

// ---------------------------------------------------------------------------
// Tracing and error helpers
// ---------------------------------------------------------------------------

// startSpan starts a client span carrying the OTel database semantic
// convention attributes.
func (s *RedisStore) startSpan(ctx context.Context, op, statement string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "policy.redis."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", s.db),
		attribute.String("db.statement", statement),
	)
	return ctx, span
}

// finishSpan records err, if any, sets the span status and ends the span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError classifies a Redis error. Deadline expiry maps to CodeTimeout;
// everything else to CodeUnavailableStore.
func wrapError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeout, message)
	}
	return sserr.Wrap(err, sserr.CodeUnavailableStore, message)
}
