// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/playbook"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultKeyPrefix is the prefix for all keys written by the store
	DefaultKeyPrefix = "churnai:"
	// DefaultMaxEvents is the number of events kept per tenant
	DefaultMaxEvents = 1000

	fieldStatus = "status"
	fieldTenant = "tenant"
	fieldDoc    = "doc"
)

// transitionScript writes a conversation only if its status still matches.
//
// KEYS[1] conversation hash, KEYS[2] tenant stats hash
// ARGV[1] expected status, ARGV[2] new status, ARGV[3] document
// ARGV[4] saves delta, ARGV[5] declines delta, ARGV[6] revenue delta
//
// Returns -1 when the conversation is missing, 0 on status mismatch, 1 on success.
var transitionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return -1
end
if current ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'doc', ARGV[3])
if ARGV[4] ~= '0' then
  redis.call('HINCRBY', KEYS[2], 'saves', ARGV[4])
end
if ARGV[5] ~= '0' then
  redis.call('HINCRBY', KEYS[2], 'declines', ARGV[5])
end
if ARGV[6] ~= '0' then
  redis.call('HINCRBY', KEYS[2], 'revenue_saved_minor', ARGV[6])
end
return 1
`)

// RedisStore implements the conversation, event and playbook stores on Redis.
//
// Layout:
//
//	<prefix>conv:<id>                      hash {status, tenant, doc}
//	<prefix>tenant:<id>:conversations      zset of conversation ids by creation time
//	<prefix>tenant:<id>:stats              hash {attempts, saves, declines, revenue_saved_minor}
//	<prefix>tenant:<id>:events             list of event documents, newest first
//	<prefix>tenant:<id>:playbook           rule table document
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisStoreConfig
}

type RedisStoreConfig struct {
	KeyPrefix string
	MaxEvents int64
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	return &RedisStore{client: client, cfg: cfg}
}

func (r *RedisStore) convKey(id string) string {
	return r.cfg.KeyPrefix + "conv:" + id
}

func (r *RedisStore) tenantKey(tenantID, suffix string) string {
	return fmt.Sprintf("%stenant:%s:%s", r.cfg.KeyPrefix, tenantID, suffix)
}

// InsertConversation stores a new conversation and counts the attempt.
func (r *RedisStore) InsertConversation(ctx context.Context, c *conversation.Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.convKey(c.ID), fieldStatus, string(c.Status), fieldTenant, c.TenantID, fieldDoc, data)
		pipe.ZAdd(ctx, r.tenantKey(c.TenantID, "conversations"), &redis.Z{
			Score:  float64(c.CreatedAt.UnixMilli()),
			Member: c.ID,
		})
		pipe.HIncrBy(ctx, r.tenantKey(c.TenantID, "stats"), "attempts", 1)
		return nil
	})
	if err != nil {
		logrus.Errorf("failed to insert conversation %s: %v", c.ID, err)
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	logrus.Debugf("inserted conversation %s for tenant %s", c.ID, c.TenantID)
	return nil
}

// GetConversation loads a conversation by id.
func (r *RedisStore) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	vals, err := r.client.HMGet(ctx, r.convKey(id), fieldStatus, fieldDoc).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	status, ok1 := vals[0].(string)
	doc, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, conversation.ErrNotFound
	}

	return decodeConversation(status, doc)
}

func decodeConversation(status, doc string) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	// The status field is authoritative; the document is rewritten with it.
	c.Status = conversation.Status(status)
	return &c, nil
}

// UpdateConversation applies patch if the stored status equals expected.
func (r *RedisStore) UpdateConversation(ctx context.Context, id string, patch conversation.Patch, expected conversation.Status) (*conversation.Conversation, error) {
	current, err := r.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != expected {
		return nil, conversation.ErrStatusConflict
	}

	next := current.Clone()
	next.Apply(patch)
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}

	var saves, declines, revenue int64
	switch {
	case patch.Status == conversation.StatusAccepted && expected != conversation.StatusAccepted:
		saves = 1
		revenue = next.RevenueSavedMinor
	case patch.Status == conversation.StatusDeclined && expected != conversation.StatusDeclined:
		declines = 1
	}

	res, err := transitionScript.Run(ctx, r.client,
		[]string{r.convKey(id), r.tenantKey(current.TenantID, "stats")},
		string(expected), string(patch.Status), data,
		strconv.FormatInt(saves, 10), strconv.FormatInt(declines, 10), strconv.FormatInt(revenue, 10),
	).Int64()
	if err != nil {
		logrus.Errorf("failed to update conversation %s: %v", id, err)
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	switch res {
	case -1:
		return nil, conversation.ErrNotFound
	case 0:
		return nil, conversation.ErrStatusConflict
	}

	logrus.Debugf("conversation %s moved %s -> %s", id, expected, patch.Status)
	return next, nil
}

// QueryConversations returns a tenant's newest conversations.
func (r *RedisStore) QueryConversations(ctx context.Context, tenantID string, limit int) ([]*conversation.Conversation, error) {
	ids, err := r.client.ZRevRange(ctx, r.tenantKey(tenantID, "conversations"), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(ids) == 0 {
		return []*conversation.Conversation{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, r.convKey(id), fieldStatus, fieldDoc)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	out := make([]*conversation.Conversation, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		status, ok1 := vals[0].(string)
		doc, ok2 := vals[1].(string)
		if !ok1 || !ok2 {
			logrus.Warnf("conversation %s is indexed but missing", ids[i])
			continue
		}
		c, err := decodeConversation(status, doc)
		if err != nil {
			logrus.Warnf("skipping unreadable conversation %s: %v", ids[i], err)
			continue
		}
		out = append(out, c)
	}

	return out, nil
}

// QueryTenantAnalytics reads the tenant's counters.
func (r *RedisStore) QueryTenantAnalytics(ctx context.Context, tenantID string) (*conversation.Analytics, error) {
	vals, err := r.client.HGetAll(ctx, r.tenantKey(tenantID, "stats")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant stats: %w", err)
	}

	parse := func(field string) int64 {
		v, _ := strconv.ParseInt(vals[field], 10, 64)
		return v
	}

	a := &conversation.Analytics{
		Attempts:          parse("attempts"),
		Saves:             parse("saves"),
		Declines:          parse("declines"),
		RevenueSavedMinor: parse("revenue_saved_minor"),
	}
	a.Pending = a.Attempts - a.Saves - a.Declines
	if a.Pending < 0 {
		a.Pending = 0
	}
	a.ComputeSaveRate()

	return a, nil
}

// InsertEvent prepends an event to the tenant's capped event list.
func (r *RedisStore) InsertEvent(ctx context.Context, e *conversation.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := r.tenantKey(e.TenantID, "events")
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, r.cfg.MaxEvents-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// QueryEvents returns a tenant's newest events.
func (r *RedisStore) QueryEvents(ctx context.Context, tenantID string, limit int) ([]*conversation.Event, error) {
	docs, err := r.client.LRange(ctx, r.tenantKey(tenantID, "events"), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	out := make([]*conversation.Event, 0, len(docs))
	for _, doc := range docs {
		var e conversation.Event
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			logrus.Warnf("skipping unreadable event for tenant %s: %v", tenantID, err)
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

// GetPlaybookRules returns the rules saved for a tenant, or playbook.ErrNoRules.
func (r *RedisStore) GetPlaybookRules(ctx context.Context, tenantID string) ([]playbook.Rule, error) {
	data, err := r.client.Get(ctx, r.tenantKey(tenantID, "playbook")).Result()
	if err == redis.Nil {
		return nil, playbook.ErrNoRules
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playbook: %w", err)
	}

	var rules []playbook.Rule
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playbook: %w", err)
	}
	return rules, nil
}

// SavePlaybookRules validates and replaces a tenant's rules.
func (r *RedisStore) SavePlaybookRules(ctx context.Context, tenantID string, rules []playbook.Rule) error {
	if _, err := playbook.NewTable(tenantID, rules); err != nil {
		return err
	}

	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal playbook: %w", err)
	}

	if err := r.client.Set(ctx, r.tenantKey(tenantID, "playbook"), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save playbook: %w", err)
	}

	logrus.Infof("saved %d playbook rules for tenant %s", len(rules), tenantID)
	return nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
