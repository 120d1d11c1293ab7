package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/domain/inventory"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// ErrVectorSearchUnsupported is returned by NearestByEmbedding on databases
// without the pgvector extension.
var ErrVectorSearchUnsupported = errors.New("nearest-neighbour search requires postgres with pgvector")

const nearestByEmbeddingSQL = `SELECT p.*, 1 - (p.embedding <=> ?) AS similarity
FROM product p
WHERE p.embedding IS NOT NULL AND vector_dims(p.embedding) = ?
ORDER BY p.embedding <=> ?, p.created_at ASC, p.id ASC
LIMIT 1`

type ProductRepo interface {
	Create(dbc dbctx.Context, products []*types.Product) ([]*types.Product, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Product, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Product, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Product, error)
	ListForMatching(dbc dbctx.Context) ([]*types.Product, error)
	NearestByEmbedding(dbc dbctx.Context, vec []float32) (*types.Product, float64, error)
	ListMissingEmbedding(dbc dbctx.Context, limit int) ([]*types.Product, error)
	UpdateEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32) error
	IncrementQuantity(dbc dbctx.Context, id uuid.UUID, delta int) error
	ListLowStock(dbc dbctx.Context) ([]*types.Product, error)
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{
		db:  db,
		log: baseLog.With("repo", "ProductRepo"),
	}
}

func (r *productRepo) Create(dbc dbctx.Context, products []*types.Product) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(products) == 0 {
		return []*types.Product{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns (nil, nil) when the product does not exist.
func (r *productRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return r.first(transaction.WithContext(dbc.Ctx), id)
}

// GetByIDForUpdate row-locks the product for the rest of dbc.Tx.
func (r *productRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return r.first(transaction.WithContext(dbc.Ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *productRepo) first(q *gorm.DB, id uuid.UUID) (*types.Product, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Product
	if err := q.Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *productRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListForMatching returns the whole catalog in a stable order so fuzzy
// tie-breaks are reproducible.
func (r *productRepo) ListForMatching(dbc dbctx.Context) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).
		Omit("embedding").
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type nearestRow struct {
	types.Product
	Similarity float64 `gorm:"column:similarity"`
}

// NearestByEmbedding returns the product whose embedding has the smallest
// cosine distance to vec, with similarity = 1 - distance. Embeddings of a
// different dimension are not compared. Returns (nil, 0, nil) when nothing is
// comparable.
func (r *productRepo) NearestByEmbedding(dbc dbctx.Context, vec []float32) (*types.Product, float64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(vec) == 0 {
		return nil, 0, nil
	}
	if transaction.Dialector.Name() != "postgres" {
		return nil, 0, ErrVectorSearchUnsupported
	}
	q := pgvector.NewVector(vec)
	var rows []nearestRow
	if err := transaction.WithContext(dbc.Ctx).
		Raw(nearestByEmbeddingSQL, q, len(vec), q).
		Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 || rows[0].ID == uuid.Nil {
		return nil, 0, nil
	}
	best := rows[0].Product
	return &best, rows[0].Similarity, nil
}

func (r *productRepo) ListMissingEmbedding(dbc dbctx.Context, limit int) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).
		Where("embedding IS NULL").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productRepo) UpdateEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":  inventory.EncodeVector(vec),
			"updated_at": time.Now(),
		}).Error
}

// IncrementQuantity adds delta in a single UPDATE so concurrent writers
// cannot lose increments even without an explicit lock.
func (r *productRepo) IncrementQuantity(dbc dbctx.Context, id uuid.UUID, delta int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": time.Now(),
		}).Error
}

func (r *productRepo) ListLowStock(dbc dbctx.Context) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).
		Omit("embedding").
		Where("quantity < reorder_point").
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
