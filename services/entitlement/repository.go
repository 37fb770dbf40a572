package entitlement

import (
	"context"
	"errors"
	"sync"

	"carematch/pkg/db/pagination"

	"gorm.io/gorm"
)

// Repository holds the current record per owner. There is no delete: a new
// purchase supersedes the previous record.
type Repository interface {
	Get(ctx context.Context, ownerID string) (*Record, error)
	Put(ctx context.Context, ownerID string, r *Record) error
}

// HistoryRepository lists past records of an owner, newest first.
type HistoryRepository interface {
	History(ctx context.Context, ownerID string, page pagination.Pagination) ([]*Record, pagination.PageInfo, error)
}

// Resetter is implemented by repositories that can be wiped between tests.
type Resetter interface {
	Reset()
}

type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (m *MemoryRepository) Get(_ context.Context, ownerID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[ownerID].clone(), nil
}

func (m *MemoryRepository) Put(_ context.Context, ownerID string, r *Record) error {
	if r == nil {
		return errors.New("entitlement: nil record")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ownerID] = r.clone()
	return nil
}

// History returns the current record only; superseded records are not kept.
func (m *MemoryRepository) History(_ context.Context, ownerID string, page pagination.Pagination) ([]*Record, pagination.PageInfo, error) {
	cur, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[ownerID]
	if !ok || cur != nil {
		return []*Record{}, pagination.PageInfo{}, nil
	}
	return []*Record{rec.clone()}, pagination.PageInfo{}, nil
}

func (m *MemoryRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record)
}

// GormRepository keeps every issued record; the newest one per owner and
// kind is current.
type GormRepository struct {
	db   *gorm.DB
	kind Kind
}

func NewGormRepository(db *gorm.DB, kind Kind) *GormRepository {
	return &GormRepository{db: db, kind: kind}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

func (g *GormRepository) Get(ctx context.Context, ownerID string) (*Record, error) {
	var rec Record
	err := g.db.WithContext(ctx).
		Where("owner_id = ? AND kind = ?", ownerID, g.kind).
		Order("created_at DESC").
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put inserts a new record or updates an existing one by id.
func (g *GormRepository) Put(ctx context.Context, ownerID string, r *Record) error {
	if r == nil {
		return errors.New("entitlement: nil record")
	}
	rec := r.clone()
	rec.OwnerID = ownerID
	rec.Kind = g.kind
	return g.db.WithContext(ctx).Save(rec).Error
}

// History lists the records of the owner, newest first, one page at a time.
func (g *GormRepository) History(ctx context.Context, ownerID string, page pagination.Pagination) ([]*Record, pagination.PageInfo, error) {
	page = page.Normalize()
	cur, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	q := g.db.WithContext(ctx).Where("owner_id = ? AND kind = ?", ownerID, g.kind)
	if cur != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	var recs []*Record
	if err := q.Order("created_at DESC").Order("id DESC").Limit(page.Limit + 1).Find(&recs).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Page(recs, page.Limit, func(r *Record) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
}
