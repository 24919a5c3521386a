package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"saffy-workflow/internal/domain"
)

// tableDef 实体表定义：id/version/status/data(jsonb)/created_at/updated_at
type tableDef struct {
	entity string
	table  string
	// withAssessment 风险项额外的 assessment_id 列
	withAssessment bool
	// uniqueIndex/uniqueKey 文档字段上的唯一索引（见 schema.sql）
	uniqueIndex string
	uniqueKey   string
	uniqueValue func(domain.Document) string
}

var (
	permitTable = tableDef{
		entity:      EntityPermit,
		table:       "work_permits",
		uniqueIndex: "uq_work_permits_number",
		uniqueKey:   "permitNumber",
		uniqueValue: func(doc domain.Document) string {
			if p, ok := doc.(*domain.WorkPermit); ok {
				return p.PermitNumber
			}
			return ""
		},
	}
	taskTable     = tableDef{entity: EntityTask, table: "maintenance_tasks"}
	alertTable    = tableDef{entity: EntityAlert, table: "facility_alerts"}
	riskItemTable = tableDef{entity: EntityRiskItem, table: "risk_assessment_items", withAssessment: true}
)

// PostgresStore JSONB 文档表上的版本化存储
type PostgresStore[E any, P DocPtr[E]] struct {
	db  *sql.DB
	def tableDef
	now func() time.Time
}

func newPostgresStore[E any, P DocPtr[E]](db *sql.DB, def tableDef) *PostgresStore[E, P] {
	return &PostgresStore[E, P]{db: db, def: def, now: func() time.Time { return time.Now().UTC() }}
}

// NewPostgresEntityStore 创建 PostgreSQL 存储
func NewPostgresEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{
		Permits:   newPostgresStore[domain.WorkPermit](db, permitTable),
		Tasks:     newPostgresStore[domain.MaintenanceTask](db, taskTable),
		Alerts:    newPostgresStore[domain.FacilityAlert](db, alertTable),
		RiskItems: newPostgresStore[domain.RiskAssessmentItem](db, riskItemTable),
	}
}

var _ AlertStore = (*PostgresStore[domain.FacilityAlert, *domain.FacilityAlert])(nil)

func (s *PostgresStore[E, P]) assessmentOf(doc P) sql.NullString {
	if !s.def.withAssessment {
		return sql.NullString{}
	}
	if it, ok := any(doc).(*domain.RiskAssessmentItem); ok && it.AssessmentID != "" {
		return sql.NullString{String: it.AssessmentID, Valid: true}
	}
	return sql.NullString{}
}

// uniqueViolation 唯一索引冲突（23505）转换为 DuplicateKeyError
func (s *PostgresStore[E, P]) uniqueViolation(err error, doc P) error {
	var pqErr *pq.Error
	if s.def.uniqueIndex == "" || !errors.As(err, &pqErr) {
		return nil
	}
	if pqErr.Code != "23505" || pqErr.Constraint != s.def.uniqueIndex {
		return nil
	}
	return &domain.DuplicateKeyError{Entity: s.def.entity, Key: s.def.uniqueKey, Value: s.def.uniqueValue(doc)}
}

func (s *PostgresStore[E, P]) marshal(doc P, version int64) ([]byte, error) {
	copied := *doc
	P(&copied).SetDocVersion(version)
	b, err := json.Marshal(P(&copied))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", s.def.entity, err)
	}
	return b, nil
}

func (s *PostgresStore[E, P]) unmarshal(data []byte, version int64) (P, error) {
	var e E
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.def.entity, err)
	}
	p := P(&e)
	p.SetDocVersion(version)
	return p, nil
}

// Create INSERT ... ON CONFLICT DO NOTHING；未插入说明 id 已存在
func (s *PostgresStore[E, P]) Create(ctx context.Context, doc P) (P, error) {
	id := doc.DocID()
	if id == "" {
		return nil, domain.NewValidationError(s.def.entity, "id", "is required")
	}
	data, err := s.marshal(doc, 1)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var res sql.Result
	if s.def.withAssessment {
		query := `
			INSERT INTO ` + s.def.table + ` (id, version, status, assessment_id, data, created_at, updated_at)
			VALUES ($1, 1, $2, $3, $4, $5, $5)
			ON CONFLICT (id) DO NOTHING
		`
		res, err = s.db.ExecContext(ctx, query, id, doc.DocStatus(), s.assessmentOf(doc), string(data), now)
	} else {
		query := `
			INSERT INTO ` + s.def.table + ` (id, version, status, data, created_at, updated_at)
			VALUES ($1, 1, $2, $3, $4, $4)
			ON CONFLICT (id) DO NOTHING
		`
		res, err = s.db.ExecContext(ctx, query, id, doc.DocStatus(), string(data), now)
	}
	if err != nil {
		if dup := s.uniqueViolation(err, doc); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to insert %s: %w", s.def.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", s.def.entity, err)
	}
	if n == 0 {
		actual, verr := s.currentVersion(ctx, id)
		if verr != nil {
			return nil, verr
		}
		return nil, &domain.ConcurrencyConflictError{Entity: s.def.entity, ID: id, Expected: 0, Actual: actual}
	}
	return s.unmarshal(data, 1)
}

func (s *PostgresStore[E, P]) currentVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM `+s.def.table+` WHERE id = $1`, id).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &domain.NotFoundError{Entity: s.def.entity, ID: id}
		}
		return 0, fmt.Errorf("failed to get %s version: %w", s.def.entity, err)
	}
	return v, nil
}

// Get 读取实体
func (s *PostgresStore[E, P]) Get(ctx context.Context, id string) (P, error) {
	if id == "" {
		return nil, &domain.NotFoundError{Entity: s.def.entity, ID: id}
	}
	query := `SELECT version, data FROM ` + s.def.table + ` WHERE id = $1`

	var version int64
	var data []byte
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&version, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: s.def.entity, ID: id}
		}
		return nil, fmt.Errorf("failed to get %s: %w", s.def.entity, err)
	}
	return s.unmarshal(data, version)
}

// Update 条件更新：WHERE id AND version = expectedVersion
func (s *PostgresStore[E, P]) Update(ctx context.Context, doc P, expectedVersion int64) (P, error) {
	id := doc.DocID()
	next := expectedVersion + 1
	data, err := s.marshal(doc, next)
	if err != nil {
		return nil, err
	}

	var res sql.Result
	if s.def.withAssessment {
		query := `
			UPDATE ` + s.def.table + `
			SET version = $3, status = $4, assessment_id = $5, data = $6, updated_at = $7
			WHERE id = $1 AND version = $2
		`
		res, err = s.db.ExecContext(ctx, query, id, expectedVersion, next, doc.DocStatus(), s.assessmentOf(doc), string(data), s.now())
	} else {
		query := `
			UPDATE ` + s.def.table + `
			SET version = $3, status = $4, data = $5, updated_at = $6
			WHERE id = $1 AND version = $2
		`
		res, err = s.db.ExecContext(ctx, query, id, expectedVersion, next, doc.DocStatus(), string(data), s.now())
	}
	if err != nil {
		if dup := s.uniqueViolation(err, doc); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to update %s: %w", s.def.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", s.def.entity, err)
	}
	if n == 0 {
		actual, verr := s.currentVersion(ctx, id)
		if verr != nil {
			return nil, verr
		}
		return nil, &domain.ConcurrencyConflictError{Entity: s.def.entity, ID: id, Expected: expectedVersion, Actual: actual}
	}
	return s.unmarshal(data, next)
}

// Delete 条件删除
func (s *PostgresStore[E, P]) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.def.table+` WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.def.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.def.entity, err)
	}
	if n == 0 {
		actual, verr := s.currentVersion(ctx, id)
		if verr != nil {
			return verr
		}
		return &domain.ConcurrencyConflictError{Entity: s.def.entity, ID: id, Expected: expectedVersion, Actual: actual}
	}
	return nil
}

// List 按创建时间排序
func (s *PostgresStore[E, P]) List(ctx context.Context, f ListFilter) ([]P, error) {
	where := []string{"1=1"}
	args := []any{}
	argN := 1
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, f.Status)
		argN++
	}
	if f.AssessmentID != "" && s.def.withAssessment {
		where = append(where, fmt.Sprintf("assessment_id = $%d", argN))
		args = append(args, f.AssessmentID)
		argN++
	}
	query := `SELECT version, data FROM ` + s.def.table + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, f.Limit)
		argN++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.def.entity, err)
	}
	defer rows.Close()

	out := []P{}
	for rows.Next() {
		var version int64
		var data []byte
		if err := rows.Scan(&version, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.def.entity, err)
		}
		p, err := s.unmarshal(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.def.entity, err)
	}
	return out, nil
}
