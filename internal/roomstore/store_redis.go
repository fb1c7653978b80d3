package roomstore

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/park285/rps-room-server/internal/obslog"
    "github.com/park285/rps-room-server/internal/rps"
    "go.uber.org/zap"
)

// RedisStore keeps each room as a JSON document under rps:room:<id> and open
// rooms in a sorted set per mode scored by creation time (unix ms).
type RedisStore struct {
    rdb  *redis.Client
    opts Options
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
    return &RedisStore{rdb: rdb, opts: opts.withDefaults()}
}

func roomKey(id string) string      { return "rps:room:" + strings.TrimSpace(id) }
func lobbyKey(mode rps.Mode) string  { return "rps:lobby:" + string(mode) }

func (s *RedisStore) Create(ctx context.Context, room *rps.Room) error {
    raw, err := json.Marshal(room)
    if err != nil { return fmt.Errorf("encode room: %w", err) }
    key := roomKey(room.ID)
    exists := fmt.Errorf("create room: id %s already exists", room.ID)
    err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
        n, err := tx.Exists(ctx, key).Result()
        if err != nil { return err }
        if n > 0 { return exists }
        // the lobby entry is only added together with a document we own
        _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            pipe.Set(ctx, key, raw, s.opts.TTL)
            if room.SecondPlayer == nil {
                pipe.ZAdd(ctx, lobbyKey(room.Mode), redis.Z{Score: float64(room.CreationTime.UnixMilli()), Member: room.ID})
            }
            return nil
        })
        return err
    }, key)
    if errors.Is(err, redis.TxFailedErr) { return exists }
    if err == exists { return err }
    if err != nil { return fmt.Errorf("create room: %w", err) }
    return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*rps.Room, error) {
    raw, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
    if err == redis.Nil { return nil, rps.RoomNotFound(id) }
    if err != nil { return nil, fmt.Errorf("load room: %w", err) }
    return decodeRoom(raw)
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*rps.Room) error) (*rps.Room, error) {
    key := roomKey(id)
    deadline := time.Now().Add(s.opts.Timeout)
    var out *rps.Room

    for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
        err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
            raw, err := tx.Get(ctx, key).Bytes()
            if err == redis.Nil { return rps.RoomNotFound(id) }
            if err != nil { return err }
            room, err := decodeRoom(raw)
            if err != nil { return err }
            if err := fn(room); err != nil { return err }
            newRaw, err := json.Marshal(room)
            if err != nil { return fmt.Errorf("encode room: %w", err) }

            // the write lands only if nobody touched the key since GET
            _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
                pipe.Set(ctx, key, newRaw, s.opts.TTL)
                if room.SecondPlayer != nil { pipe.ZRem(ctx, lobbyKey(room.Mode), room.ID) }
                return nil
            })
            if err != nil { return err }
            out = room
            return nil
        }, key)

        if err == nil { return out, nil }
        if !errors.Is(err, redis.TxFailedErr) { return nil, err }

        obslog.L().Debug("room_update_conflict", zap.String("room_id", id), zap.Int("attempt", attempt))
        if attempt == s.opts.MaxAttempts || time.Now().After(deadline) { break }
        if err := sleepCtx(ctx, retryDelay(attempt)); err != nil { return nil, err }
    }
    obslog.L().Warn("room_update_busy", zap.String("room_id", id), zap.Int("max_attempts", s.opts.MaxAttempts))
    return nil, rps.RoomBusy(id)
}

func (s *RedisStore) FindAvailable(ctx context.Context, mode rps.Mode, notOlderThan time.Time) ([]*rps.Room, error) {
    ids, err := s.rdb.ZRangeByScore(ctx, lobbyKey(mode), &redis.ZRangeBy{
        Min:   "(" + strconv.FormatInt(notOlderThan.UnixMilli(), 10),
        Max:   "+inf",
        Count: s.opts.FindLimit,
    }).Result()
    if err != nil { return nil, fmt.Errorf("find available: %w", err) }
    if len(ids) == 0 { return nil, nil }

    keys := make([]string, len(ids))
    for i, id := range ids { keys[i] = roomKey(id) }
    vals, err := s.rdb.MGet(ctx, keys...).Result()
    if err != nil { return nil, fmt.Errorf("find available: %w", err) }

    var out []*rps.Room
    var stale []any
    for i, v := range vals {
        str, ok := v.(string)
        if !ok { stale = append(stale, ids[i]); continue }
        room, err := decodeRoom([]byte(str))
        if err != nil { return nil, err }
        if room.SecondPlayer != nil { stale = append(stale, ids[i]); continue }
        out = append(out, room)
    }
    if len(stale) > 0 {
        _ = s.rdb.ZRem(ctx, lobbyKey(mode), stale...).Err()
    }
    return out, nil
}

func (s *RedisStore) PruneLobby(ctx context.Context, mode rps.Mode, olderThan time.Time) (int64, error) {
    n, err := s.rdb.ZRemRangeByScore(ctx, lobbyKey(mode), "-inf", "("+strconv.FormatInt(olderThan.UnixMilli(), 10)).Result()
    if err != nil { return 0, fmt.Errorf("prune lobby: %w", err) }
    return n, nil
}

func decodeRoom(raw []byte) (*rps.Room, error) {
    var r rps.Room
    if err := json.Unmarshal(raw, &r); err != nil { return nil, fmt.Errorf("decode room: %w", err) }
    return &r, nil
}
