package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/workflow"
)

// checkpointRow 快照主表。同一线程内 seq 单调递增，记录只增不改。
type checkpointRow struct {
	ID        uint   `gorm:"primaryKey"`
	ThreadID  string `gorm:"index:idx_thread_seq,unique,priority:1;size:128;not null"`
	Seq       int    `gorm:"index:idx_thread_seq,unique,priority:2;not null"`
	Node      string `gorm:"size:64;not null"`
	State     []byte `gorm:"type:bytes;not null"`
	CreatedAt time.Time
}

func (checkpointRow) TableName() string { return "workflow_checkpoints" }

// checkpointWriteRow 节点写入日志表，记录每个节点落盘的时间线。
type checkpointWriteRow struct {
	ID        uint   `gorm:"primaryKey"`
	ThreadID  string `gorm:"index;size:128;not null"`
	Seq       int    `gorm:"not null"`
	Node      string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

func (checkpointWriteRow) TableName() string { return "workflow_checkpoint_writes" }

// GormStore 基于 GORM 的检查点存储。
// 生产环境走 PostgreSQL，测试可注入 SQLite 连接。
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 在已建立的连接上创建存储并迁移表结构。
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&checkpointRow{}, &checkpointWriteRow{}); err != nil {
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "checkpoint_gorm")),
	}, nil
}

// Put 追加快照。seq 在事务内取线程当前最大值加一。
func (s *GormStore) Put(ctx context.Context, threadID, node string, state []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		err := tx.Model(&checkpointRow{}).
			Where("thread_id = ?", threadID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return fmt.Errorf("checkpoint: query max seq: %w", err)
		}
		seq := maxSeq + 1
		row := checkpointRow{ThreadID: threadID, Seq: seq, Node: node, State: state}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("checkpoint: insert: %w", err)
		}
		write := checkpointWriteRow{ThreadID: threadID, Seq: seq, Node: node}
		if err := tx.Create(&write).Error; err != nil {
			return fmt.Errorf("checkpoint: insert write log: %w", err)
		}
		return nil
	})
}

// Latest 返回线程最新快照。
func (s *GormStore) Latest(ctx context.Context, threadID string) ([]byte, error) {
	var row checkpointRow
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("seq DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: query latest: %w", err)
	}
	return row.State, nil
}

// DeleteThread 逐表删除线程数据。
// 单表失败记录日志后继续删其余表，属于尽力而为的清理。
func (s *GormStore) DeleteThread(ctx context.Context, threadID string) error {
	tables := []any{&checkpointRow{}, &checkpointWriteRow{}}
	for _, model := range tables {
		res := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(model)
		if res.Error != nil {
			s.logger.Error("checkpoint table cleanup failed",
				zap.String("thread_id", threadID),
				zap.Error(res.Error))
			continue
		}
		s.logger.Debug("checkpoint table cleaned",
			zap.String("thread_id", threadID),
			zap.Int64("rows", res.RowsAffected))
	}
	return nil
}

// GormProvider 延迟建连的 PostgreSQL 检查点提供者。
type GormProvider struct {
	cfg    config.DatabaseConfig
	logger *zap.Logger

	once  sync.Once
	store *GormStore
	err   error
}

// NewGormProvider 创建 PostgreSQL 检查点提供者。
func NewGormProvider(cfg config.DatabaseConfig, logger *zap.Logger) *GormProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormProvider{cfg: cfg, logger: logger}
}

// Acquire 首次调用时打开连接池并迁移表结构。
func (p *GormProvider) Acquire(ctx context.Context) (workflow.Checkpointer, error) {
	p.once.Do(func() {
		db, err := gorm.Open(postgres.Open(p.cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			p.err = fmt.Errorf("checkpoint: open postgres: %w", err)
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			p.err = fmt.Errorf("checkpoint: access pool: %w", err)
			return
		}
		sqlDB.SetMaxOpenConns(p.cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(p.cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)

		p.store, p.err = NewGormStore(db, p.logger)
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.store, nil
}
