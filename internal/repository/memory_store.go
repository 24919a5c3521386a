package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"saffy-workflow/internal/domain"
)

type memoryOptions struct {
	assessmentID func(domain.Document) string
	// uniqueKey 非空值在表内唯一（对应 postgres 的唯一索引）
	uniqueKey   string
	uniqueValue func(domain.Document) string
}

type memoryOption func(*memoryOptions)

type memoryRow struct {
	seq          int64
	version      int64
	status       string
	assessmentID string
	unique       string
	data         []byte
}

// MemoryStore 内存版本化存储，保存 JSON 快照
type MemoryStore[E any, P DocPtr[E]] struct {
	mu     sync.RWMutex
	entity string
	opts   memoryOptions
	seq    int64
	rows   map[string]memoryRow
}

// NewMemoryStore 创建内存存储
func NewMemoryStore[E any, P DocPtr[E]](entity string, opts ...memoryOption) *MemoryStore[E, P] {
	s := &MemoryStore[E, P]{entity: entity, rows: map[string]memoryRow{}}
	for _, o := range opts {
		o(&s.opts)
	}
	return s
}

var _ PermitStore = (*MemoryStore[domain.WorkPermit, *domain.WorkPermit])(nil)

func (s *MemoryStore[E, P]) decode(row memoryRow) (P, error) {
	var e E
	if err := json.Unmarshal(row.data, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.entity, err)
	}
	p := P(&e)
	p.SetDocVersion(row.version)
	return p, nil
}

func (s *MemoryStore[E, P]) encode(doc P, version int64) (memoryRow, error) {
	doc.SetDocVersion(version)
	b, err := json.Marshal(doc)
	if err != nil {
		return memoryRow{}, fmt.Errorf("encode %s: %w", s.entity, err)
	}
	row := memoryRow{version: version, status: doc.DocStatus(), data: b}
	if s.opts.assessmentID != nil {
		row.assessmentID = s.opts.assessmentID(doc)
	}
	if s.opts.uniqueValue != nil {
		row.unique = s.opts.uniqueValue(doc)
	}
	return row, nil
}

// Create 新建实体，version 置为 1；id 已存在时返回版本冲突
func (s *MemoryStore[E, P]) Create(_ context.Context, doc P) (P, error) {
	id := doc.DocID()
	if id == "" {
		return nil, domain.NewValidationError(s.entity, "id", "is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.rows[id]; ok {
		return nil, &domain.ConcurrencyConflictError{Entity: s.entity, ID: id, Expected: 0, Actual: cur.version}
	}
	// 不修改调用方的对象
	copied, err := s.copyOf(doc)
	if err != nil {
		return nil, err
	}
	row, err := s.encode(copied, 1)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(id, row); err != nil {
		return nil, err
	}
	s.seq++
	row.seq = s.seq
	s.rows[id] = row
	return s.decode(row)
}

// checkUnique 调用方持有写锁
func (s *MemoryStore[E, P]) checkUnique(id string, row memoryRow) error {
	if row.unique == "" {
		return nil
	}
	for otherID, other := range s.rows {
		if otherID != id && other.unique == row.unique {
			return &domain.DuplicateKeyError{Entity: s.entity, Key: s.opts.uniqueKey, Value: row.unique}
		}
	}
	return nil
}

func (s *MemoryStore[E, P]) copyOf(doc P) (P, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.entity, err)
	}
	var e E
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.entity, err)
	}
	return P(&e), nil
}

// Get 读取快照
func (s *MemoryStore[E, P]) Get(_ context.Context, id string) (P, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: s.entity, ID: id}
	}
	return s.decode(row)
}

// Update 条件写入：expectedVersion 必须等于当前版本
func (s *MemoryStore[E, P]) Update(_ context.Context, doc P, expectedVersion int64) (P, error) {
	id := doc.DocID()
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: s.entity, ID: id}
	}
	if cur.version != expectedVersion {
		return nil, &domain.ConcurrencyConflictError{Entity: s.entity, ID: id, Expected: expectedVersion, Actual: cur.version}
	}
	copied, err := s.copyOf(doc)
	if err != nil {
		return nil, err
	}
	row, err := s.encode(copied, expectedVersion+1)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(id, row); err != nil {
		return nil, err
	}
	row.seq = cur.seq
	s.rows[id] = row
	return s.decode(row)
}

// Delete 条件删除
func (s *MemoryStore[E, P]) Delete(_ context.Context, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[id]
	if !ok {
		return &domain.NotFoundError{Entity: s.entity, ID: id}
	}
	if cur.version != expectedVersion {
		return &domain.ConcurrencyConflictError{Entity: s.entity, ID: id, Expected: expectedVersion, Actual: cur.version}
	}
	delete(s.rows, id)
	return nil
}

// List 按创建顺序返回
func (s *MemoryStore[E, P]) List(_ context.Context, f ListFilter) ([]P, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]memoryRow, 0, len(s.rows))
	for _, r := range s.rows {
		if f.Status != "" && r.status != f.Status {
			continue
		}
		if f.AssessmentID != "" && r.assessmentID != f.AssessmentID {
			continue
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	start := f.Offset
	if start < 0 || start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}

	out := make([]P, 0, end-start)
	for _, r := range rows[start:end] {
		p, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
