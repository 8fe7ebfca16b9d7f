package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/workflow"
)

// RedisStore 基于 Redis 的检查点存储。
// 键布局：
//
//	{prefix}:ckpt:seq:{thread}          序号计数器
//	{prefix}:ckpt:index:{thread}        zset，score 与 member 均为 seq
//	{prefix}:ckpt:state:{thread}:{seq}  状态快照
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore 在已建立的客户端上创建存储。
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "graphchat"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "checkpoint_redis")),
	}
}

func (s *RedisStore) seqKey(threadID string) string {
	return fmt.Sprintf("%s:ckpt:seq:%s", s.prefix, threadID)
}

func (s *RedisStore) indexKey(threadID string) string {
	return fmt.Sprintf("%s:ckpt:index:%s", s.prefix, threadID)
}

func (s *RedisStore) stateKey(threadID string, seq int64) string {
	return fmt.Sprintf("%s:ckpt:state:%s:%d", s.prefix, threadID, seq)
}

// Put 追加快照。序号通过 INCR 分配，保证并发下单调递增。
func (s *RedisStore) Put(ctx context.Context, threadID, node string, state []byte) error {
	seq, err := s.client.Incr(ctx, s.seqKey(threadID)).Result()
	if err != nil {
		return fmt.Errorf("checkpoint: allocate seq: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.stateKey(threadID, seq), state, 0)
	pipe.ZAdd(ctx, s.indexKey(threadID), redis.Z{Score: float64(seq), Member: seq})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint: write snapshot: %w", err)
	}
	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", threadID),
		zap.String("node", node),
		zap.Int64("seq", seq))
	return nil
}

// Latest 返回线程最新快照。
func (s *RedisStore) Latest(ctx context.Context, threadID string) ([]byte, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("checkpoint: query index: %w", err)
	}
	if len(members) == 0 {
		return nil, workflow.ErrNoCheckpoint
	}
	seq, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: corrupt index entry %q: %w", members[0], err)
	}
	data, err := s.client.Get(ctx, s.stateKey(threadID, seq)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, workflow.ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read snapshot: %w", err)
	}
	return data, nil
}

// DeleteThread 删除线程的索引、计数器与全部快照。
// 各键删除失败记录日志后继续。
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	members, err := s.client.ZRange(ctx, s.indexKey(threadID), 0, -1).Result()
	if err != nil {
		s.logger.Error("checkpoint index scan failed",
			zap.String("thread_id", threadID), zap.Error(err))
		members = nil
	}
	for _, m := range members {
		seq, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if err := s.client.Del(ctx, s.stateKey(threadID, seq)).Err(); err != nil {
			s.logger.Error("checkpoint snapshot delete failed",
				zap.String("thread_id", threadID),
				zap.Int64("seq", seq),
				zap.Error(err))
		}
	}
	for _, key := range []string{s.indexKey(threadID), s.seqKey(threadID)} {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.logger.Error("checkpoint key delete failed",
				zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// RedisProvider 延迟建连的 Redis 检查点提供者。
type RedisProvider struct {
	cfg    config.RedisConfig
	logger *zap.Logger

	once  sync.Once
	store *RedisStore
	err   error
}

// NewRedisProvider 创建 Redis 检查点提供者。
func NewRedisProvider(cfg config.RedisConfig, logger *zap.Logger) *RedisProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisProvider{cfg: cfg, logger: logger}
}

// Acquire 首次调用时建立连接并做连通性检查。
func (p *RedisProvider) Acquire(ctx context.Context) (workflow.Checkpointer, error) {
	p.once.Do(func() {
		client := redis.NewClient(&redis.Options{
			Addr:     p.cfg.Addr,
			Password: p.cfg.Password,
			DB:       p.cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			p.err = fmt.Errorf("checkpoint: redis ping: %w", err)
			return
		}
		p.store = NewRedisStore(client, p.cfg.Prefix, p.logger)
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.store, nil
}
