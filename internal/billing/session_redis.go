package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore holds sessions as one hash per call plus a short-lived
// end-pending marker key. Atomicity for Open/Consume comes from Lua.

type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func sessionKey(callID string) string {
	return "vibemeet:billing:session:" + callID
}

func endPendingKey(callID string) string {
	return "vibemeet:billing:endpending:" + callID
}

var openSessionScript = redis.NewScript(`
-- KEYS[1] = session hash key
-- ARGV[1] = ttl_ms, ARGV[2..] = field/value pairs
-- Returns 1 if created, 0 if a session already exists.
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

var consumeSessionScript = redis.NewScript(`
-- KEYS[1] = session hash key
-- Returns the full hash (flat field/value array) and deletes it, or an empty
-- array if no session exists.
local vals = redis.call('HGETALL', KEYS[1])
if #vals == 0 then
  return vals
end
redis.call('DEL', KEYS[1])
return vals
`)

func (s *RedisSessionStore) Open(ctx context.Context, sess Session, ttl time.Duration) (bool, error) {
	if sess.CallID == "" {
		return false, fmt.Errorf("billing: session call id is required")
	}
	args := []any{ttl.Milliseconds()}
	args = append(args, sessionArgs(sess)...)

	res, err := openSessionScript.Run(ctx, s.rdb, []string{sessionKey(sess.CallID)}, args...).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, callID string) (Session, bool, error) {
	m, err := s.rdb.HGetAll(ctx, sessionKey(callID)).Result()
	if err != nil {
		return Session{}, false, err
	}
	if len(m) == 0 {
		return Session{}, false, nil
	}
	sess, err := sessionFromMap(callID, m)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess Session) error {
	// HSET leaves the key's TTL untouched, so the safety net set at open time
	// keeps counting down.
	return s.rdb.HSet(ctx, sessionKey(sess.CallID),
		"elapsed_seconds", strconv.FormatInt(sess.ElapsedSeconds, 10),
		"payer_remaining", formatFloat(sess.PayerRemaining),
		"payee_earned", formatFloat(sess.PayeeEarned),
	).Err()
}

func (s *RedisSessionStore) Consume(ctx context.Context, callID string) (Session, bool, error) {
	res, err := consumeSessionScript.Run(ctx, s.rdb, []string{sessionKey(callID)}).Slice()
	if err != nil {
		return Session{}, false, err
	}
	if len(res) == 0 {
		return Session{}, false, nil
	}

	m := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		k, ok1 := res[i].(string)
		v, ok2 := res[i+1].(string)
		if !ok1 || !ok2 {
			return Session{}, false, fmt.Errorf("billing: unexpected session hash shape for call %s", callID)
		}
		m[k] = v
	}
	sess, err := sessionFromMap(callID, m)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *RedisSessionStore) SetEndPending(ctx context.Context, callID string, grace time.Duration) error {
	return s.rdb.Set(ctx, endPendingKey(callID), "1", grace).Err()
}

func (s *RedisSessionStore) TakeEndPending(ctx context.Context, callID string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, endPendingKey(callID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func sessionArgs(sess Session) []any {
	return []any{
		"payer_id", sess.PayerID,
		"payee_id", sess.PayeeID,
		"price_per_second", formatFloat(sess.PricePerSecond),
		"earn_rate_per_second", formatFloat(sess.EarnRatePerSecond),
		"start_epoch", strconv.FormatInt(sess.StartEpoch, 10),
		"elapsed_seconds", strconv.FormatInt(sess.ElapsedSeconds, 10),
		"payer_remaining", formatFloat(sess.PayerRemaining),
		"payee_earned", formatFloat(sess.PayeeEarned),
	}
}

func sessionFromMap(callID string, m map[string]string) (Session, error) {
	sess := Session{
		CallID:  callID,
		PayerID: m["payer_id"],
		PayeeID: m["payee_id"],
	}

	var err error
	if sess.PricePerSecond, err = parseFloat(m, "price_per_second"); err != nil {
		return Session{}, err
	}
	if sess.EarnRatePerSecond, err = parseFloat(m, "earn_rate_per_second"); err != nil {
		return Session{}, err
	}
	if sess.StartEpoch, err = parseInt(m, "start_epoch"); err != nil {
		return Session{}, err
	}
	if sess.ElapsedSeconds, err = parseInt(m, "elapsed_seconds"); err != nil {
		return Session{}, err
	}
	if sess.PayerRemaining, err = parseFloat(m, "payer_remaining"); err != nil {
		return Session{}, err
	}
	if sess.PayeeEarned, err = parseFloat(m, "payee_earned"); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(m map[string]string, field string) (float64, error) {
	f, err := strconv.ParseFloat(m[field], 64)
	if err != nil {
		return 0, fmt.Errorf("billing: session field %s: %w", field, err)
	}
	return f, nil
}

func parseInt(m map[string]string, field string) (int64, error) {
	n, err := strconv.ParseInt(m[field], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("billing: session field %s: %w", field, err)
	}
	return n, nil
}
