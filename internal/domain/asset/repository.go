package asset

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListQuery is an already-parsed, bounded page request.
type ListQuery struct {
	Take   int
	Skip   int
	Type   Type
	Search string
}

type Repository interface {
	// WithTx returns a Repository bound to tx.
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, a *Asset) error
	Update(ctx context.Context, a *Asset) error
	FindByID(ctx context.Context, channelID int64, id string, includeDeleted bool) (*Asset, error)
	List(ctx context.Context, channelID int64, q ListQuery) ([]*Asset, int64, error)
	Delete(ctx context.Context, id string) error
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Asset, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// AutoMigrate creates the asset tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Asset{}, &AssetChannel{})
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, a *Asset) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if err != nil && isUniqueViolation(err) {
		return ErrNameCollision
	}
	return err
}

func (r *repository) Update(ctx context.Context, a *Asset) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error
	if err != nil && isUniqueViolation(err) {
		return ErrNameCollision
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, channelID int64, id string, includeDeleted bool) (*Asset, error) {
	var a Asset
	q := r.scoped(ctx, channelID).Preload("Channels").Where("assets.id = ?", id)
	if !includeDeleted {
		q = q.Where("assets.state = ?", StateActive)
	}
	err := q.First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// likeEscaper makes a search term match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (r *repository) List(ctx context.Context, channelID int64, q ListQuery) ([]*Asset, int64, error) {
	filtered := func() *gorm.DB {
		db := r.scoped(ctx, channelID).Where("assets.state = ?", StateActive)
		if q.Type != "" {
			db = db.Where("assets.type = ?", q.Type)
		}
		if s := strings.TrimSpace(q.Search); s != "" {
			like := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
			db = db.Where(`LOWER(assets.name) LIKE ? ESCAPE '\' OR LOWER(assets.original_name) LIKE ? ESCAPE '\'`, like, like)
		}
		return db
	}

	var total int64
	if err := filtered().Model(&Asset{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var assets []*Asset
	err := filtered().
		Preload("Channels").
		Order("assets.created_at DESC").
		Order("assets.id").
		Offset(q.Skip).
		Limit(q.Take).
		Find(&assets).Error
	return assets, total, err
}

// Delete removes the row and its channel links.
func (r *repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_id = ?", id).Delete(&AssetChannel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Asset{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repository) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Asset, error) {
	var assets []*Asset
	err := r.db.WithContext(ctx).
		Preload("Channels").
		Where("state = ? AND deleted_at < ?", StateSoftDeleted, cutoff).
		Order("deleted_at").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}

func (r *repository) scoped(ctx context.Context, channelID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&Asset{}).
		Where("EXISTS (SELECT 1 FROM asset_channels ac WHERE ac.asset_id = assets.id AND ac.channel_id = ?)", channelID)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique failed")
}
