package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saffy-workflow/internal/config"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/repository"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestScoreCmd(t *testing.T) {
	out, err := runCmd(t, "score", "3", "4")
	require.NoError(t, err)
	assert.Equal(t, "level=12 grade=high\n", out)
}

func TestScoreCmd_Errors(t *testing.T) {
	tests := [][]string{
		{"score", "0", "3"},
		{"score", "x", "3"},
		{"score", "3"},
	}
	for _, args := range tests {
		_, err := runCmd(t, args...)
		assert.Error(t, err, args)
	}
}

func TestBuildDeps_Fallbacks(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Webhook.URL = ""

	d, err := buildDeps(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.store.Permits)
	assert.Nil(t, d.db)
	assert.IsType(t, events.Nop{}, d.publisher)
	assert.IsType(t, &repository.MemoryPermitSequencer{}, d.sequencer)
}

func TestPermitSequencer_FollowsBackend(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	assert.IsType(t, &repository.MemoryPermitSequencer{}, permitSequencer(nil, nil))
	// 持久化存储不能与进程内计数搭配
	assert.IsType(t, &repository.PostgresPermitSequencer{}, permitSequencer(db, nil))
	assert.IsType(t, &repository.RedisPermitSequencer{}, permitSequencer(db, rc))
	assert.IsType(t, &repository.RedisPermitSequencer{}, permitSequencer(nil, rc))
}

func TestBuildDeps_Webhook(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Webhook.URL = "http://127.0.0.1:1/hook"

	d, err := buildDeps(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer d.Close()

	pubs, ok := d.publisher.(events.Multi)
	require.True(t, ok)
	assert.Len(t, pubs, 1)
}
