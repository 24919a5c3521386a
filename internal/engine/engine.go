// Package engine WorkflowEngine：组合审批链、风险评分、维护任务与报警生命周期，
// 负责加载/保存实体（乐观锁）、跨实体约束、读取时投影以及事件发布。
//
// 引擎不做版本冲突重试：ConcurrencyConflict 原样返回给调用方（许可证编号占用除外，见 CreatePermit）。
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"saffy-workflow/internal/alert"
	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/maintenance"
	"saffy-workflow/internal/permit"
	"saffy-workflow/internal/repository"
)

// Engine 工作流引擎
type Engine struct {
	store  *repository.EntityStore
	chain  *permit.Chain
	tasks  *maintenance.Lifecycle
	alerts *alert.Lifecycle
	seq    repository.PermitSequencer
	pub    events.Publisher
	now    func() time.Time
	newID  func() string
	logger *zap.Logger

	table  permit.ControlTable
	policy alert.Policy
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 注入时钟（测试使用固定时间）
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator 注入 id 生成器
func WithIDGenerator(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.pub = p } }

func WithSequencer(s repository.PermitSequencer) Option { return func(e *Engine) { e.seq = s } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithControlTable 许可证审批控制表
func WithControlTable(t permit.ControlTable) Option { return func(e *Engine) { e.table = t } }

// WithAlertPolicy 报警升级策略
func WithAlertPolicy(p alert.Policy) Option { return func(e *Engine) { e.policy = p } }

// New 创建引擎；store 为 nil 时使用内存存储
func New(store *repository.EntityStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		seq:    repository.NewMemoryPermitSequencer(),
		pub:    events.Nop{},
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: zap.NewNop(),
		policy: alert.DefaultPolicy(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.store == nil {
		e.store = repository.NewMemoryEntityStore()
	}
	e.chain = permit.NewChain(e.table)
	e.tasks = maintenance.NewLifecycle()
	e.alerts = alert.NewLifecycle(e.policy, e.tasks)
	return e
}

// ControlTable 当前生效的控制表
func (e *Engine) ControlTable() permit.ControlTable { return e.chain.Table() }

// Now 引擎时钟
func (e *Engine) Now() time.Time { return e.now() }

// logFailure 调用方错误记 Warn，存储 I/O 等内部错误记 Error
func (e *Engine) logFailure(msg string, err error, fields ...zap.Field) {
	kind := domain.ErrorKind(err)
	fields = append(fields, zap.String("error_kind", kind), zap.Error(err))
	if kind == "InternalError" {
		e.logger.Error(msg, fields...)
		return
	}
	e.logger.Warn(msg, fields...)
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("event_type", ev.Type),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err),
		)
	}
}

// apply 读取-变换-条件写入。fn 失败或写入冲突时存储保持不变。
func apply[P domain.Document](ctx context.Context, e *Engine, store repository.Store[P], entity, action, id string, actor domain.Actor, fn func(cur P) (P, error)) (P, error) {
	var zero P
	fields := []zap.Field{
		zap.String("entity", entity),
		zap.String("entity_id", id),
		zap.String("action", action),
		zap.String("actor_id", actor.ID),
	}

	cur, err := store.Get(ctx, id)
	if err != nil {
		e.logFailure("Failed to load entity", err, fields...)
		return zero, err
	}
	next, err := fn(cur)
	if err != nil {
		e.logFailure("Transition rejected", err, append(fields, zap.String("status", cur.DocStatus()))...)
		return zero, err
	}
	saved, err := store.Update(ctx, next, cur.DocVersion())
	if err != nil {
		e.logFailure("Failed to save entity", err, fields...)
		return zero, err
	}
	e.logger.Info("Entity updated", append(fields,
		zap.String("from_status", cur.DocStatus()),
		zap.String("to_status", saved.DocStatus()),
		zap.Int64("version", saved.DocVersion()),
	)...)
	return saved, nil
}

// create 新建实体并记录日志
func create[P domain.Document](ctx context.Context, e *Engine, store repository.Store[P], entity string, actor domain.Actor, doc P) (P, error) {
	var zero P
	saved, err := store.Create(ctx, doc)
	if err != nil {
		e.logFailure("Failed to create entity", err,
			zap.String("entity", entity),
			zap.String("entity_id", doc.DocID()),
			zap.String("actor_id", actor.ID),
		)
		return zero, err
	}
	e.logger.Info("Entity created",
		zap.String("entity", entity),
		zap.String("entity_id", saved.DocID()),
		zap.String("status", saved.DocStatus()),
		zap.String("actor_id", actor.ID),
	)
	return saved, nil
}
