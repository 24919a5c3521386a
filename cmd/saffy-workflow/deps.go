package main

import (
	"context"
	"database/sql"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"saffy-workflow/internal/config"
	"saffy-workflow/internal/database"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/repository"
)

// deps serve 使用的外部依赖；不可用的部分降级（内存存储 / 不发布）。
// 许可证编号：Redis 可用时用 Redis，否则与存储同源（postgres 计数表或进程内计数）。
type deps struct {
	store     *repository.EntityStore
	sequencer repository.PermitSequencer
	publisher events.Publisher

	db    *sql.DB
	redis *redis.Client
	mqtt  *events.MQTTClient
}

func buildDeps(ctx context.Context, cfg *config.Config, log *zap.Logger) (*deps, error) {
	d := &deps{
		store: repository.NewMemoryEntityStore(),
	}

	if cfg.DBEnabled {
		if db, err := database.NewPostgresDB(ctx, &cfg.Database); err == nil {
			if err := repository.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			d.db = db
			d.store = repository.NewPostgresEntityStore(db)
			log.Info("DB enabled for saffy-workflow")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}

	var pubs events.Multi
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err == nil {
			d.redis = client
			pubs = append(pubs, events.NewStreamPublisher(client, cfg.Events.Stream))
			log.Info("Redis enabled", zap.String("stream", cfg.Events.Stream))
		} else {
			_ = client.Close()
			log.Warn("Redis enabled but ping failed, permit numbers come from the store backend", zap.Error(err))
		}
	}

	d.sequencer = permitSequencer(d.db, d.redis)

	if cfg.MQTT.Enabled {
		client, err := events.NewMQTTClient(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			QoS:         1,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err == nil {
			d.mqtt = client
			pubs = append(pubs, events.NewMQTTPublisher(client, cfg.MQTT.TopicPrefix, 1))
			log.Info("MQTT enabled", zap.String("broker", cfg.MQTT.Broker))
		} else {
			log.Warn("MQTT enabled but connection failed, events not published to MQTT", zap.Error(err))
		}
	}

	if cfg.Webhook.URL != "" {
		pubs = append(pubs, events.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.MinSeverity, log))
	}

	if len(pubs) == 0 {
		d.publisher = events.Nop{}
	} else {
		d.publisher = pubs
	}
	return d, nil
}

// permitSequencer 进程内计数只在没有持久化后端时使用，否则重启后编号会重复
func permitSequencer(db *sql.DB, rc *redis.Client) repository.PermitSequencer {
	switch {
	case rc != nil:
		return repository.NewRedisPermitSequencer(rc)
	case db != nil:
		return repository.NewPostgresPermitSequencer(db)
	default:
		return repository.NewMemoryPermitSequencer()
	}
}

func (d *deps) Close() {
	if d.mqtt != nil {
		d.mqtt.Disconnect()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	_ = database.Close(d.db)
}
