package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// PermitSequencer 分配许可证编号 PTW-<year>-<seq>，每年从 1 开始
type PermitSequencer interface {
	Next(ctx context.Context, at time.Time) (string, error)
}

// FormatPermitNumber PTW-2024-0001
func FormatPermitNumber(year int, seq int64) string {
	return fmt.Sprintf("PTW-%d-%04d", year, seq)
}

// RedisPermitSequencer 使用 INCR permit:seq:<year>，多实例共享计数
type RedisPermitSequencer struct {
	client *redis.Client
	prefix string
}

func NewRedisPermitSequencer(client *redis.Client) *RedisPermitSequencer {
	return &RedisPermitSequencer{client: client, prefix: "permit:seq:"}
}

func (s *RedisPermitSequencer) Next(ctx context.Context, at time.Time) (string, error) {
	year := at.Year()
	seq, err := s.client.Incr(ctx, fmt.Sprintf("%s%d", s.prefix, year)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate permit number: %w", err)
	}
	return FormatPermitNumber(year, seq), nil
}

// PostgresPermitSequencer permit_sequences 表按年计数，与许可证数据同库持久化
type PostgresPermitSequencer struct {
	db *sql.DB
}

func NewPostgresPermitSequencer(db *sql.DB) *PostgresPermitSequencer {
	return &PostgresPermitSequencer{db: db}
}

func (s *PostgresPermitSequencer) Next(ctx context.Context, at time.Time) (string, error) {
	year := at.Year()
	query := `
		INSERT INTO permit_sequences (year, seq)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET seq = permit_sequences.seq + 1
		RETURNING seq
	`
	var seq int64
	if err := s.db.QueryRowContext(ctx, query, year).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to allocate permit number: %w", err)
	}
	return FormatPermitNumber(year, seq), nil
}

// MemoryPermitSequencer 进程内计数，只与内存存储搭配（重启后从 1 开始）
type MemoryPermitSequencer struct {
	mu   sync.Mutex
	seqs map[int]int64
}

func NewMemoryPermitSequencer() *MemoryPermitSequencer {
	return &MemoryPermitSequencer{seqs: map[int]int64{}}
}

func (s *MemoryPermitSequencer) Next(_ context.Context, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	year := at.Year()
	s.seqs[year]++
	return FormatPermitNumber(year, s.seqs[year]), nil
}
