package recommend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("recommendation not found")
	ErrStorageUnavailable = errors.New("recommendation storage unavailable")
	ErrInvalidInteraction = errors.New("interaction must set liked or hidden")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&Record{})
}

// Insert stores rec and fills its ID and CreatedAt.
func (r *Repo) Insert(ctx context.Context, rec *Record) error {
	rec.ID = 0
	rec.CreatedAt = time.Time{}
	rec.IsLiked, rec.IsHidden = false, false
	rec.InteractedAt = nil
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Interaction is a like/hide action. Nil fields are left unchanged.
type Interaction struct {
	Liked  *bool `json:"liked"`
	Hidden *bool `json:"hidden"`
}

// MarkInteraction applies in to the record id owned by userID.
func (r *Repo) MarkInteraction(ctx context.Context, userID string, id uint64, in Interaction) (*Record, error) {
	if in.Liked == nil && in.Hidden == nil {
		return nil, ErrInvalidInteraction
	}

	var rec Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&rec).Error; err != nil {
			return err
		}

		updates := map[string]any{"interacted_at": r.now()}
		if in.Liked != nil {
			updates["is_liked"] = *in.Liked
		}
		if in.Hidden != nil {
			updates["is_hidden"] = *in.Hidden
		}
		if err := tx.Model(&rec).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).First(&rec).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &rec, nil
}

type ListFilter struct {
	Liked    *bool
	Hidden   *bool
	Mood     string
	Limit    int
	BeforeID uint64
}

// ListForUser returns one page of userID's records, newest first. IDs are
// assigned at insert time together with created_at, so id order is creation
// order; BeforeID continues from the last id of the previous page.
func (r *Repo) ListForUser(ctx context.Context, userID string, f ListFilter) ([]Record, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(pageSize(f.Limit))

	if f.BeforeID > 0 {
		q = q.Where("id < ?", f.BeforeID)
	}
	if f.Liked != nil {
		q = q.Where("is_liked = ?", *f.Liked)
	}
	if f.Hidden != nil {
		q = q.Where("is_hidden = ?", *f.Hidden)
	}
	if f.Mood != "" {
		q = q.Where("mood = ?", f.Mood)
	}

	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return recs, nil
}

// IterForUser walks every matching record page by page. Each range over the
// returned sequence starts again from the newest record.
func (r *Repo) IterForUser(ctx context.Context, userID string, f ListFilter) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		page := f
		for {
			recs, err := r.ListForUser(ctx, userID, page)
			if err != nil {
				yield(Record{}, err)
				return
			}
			for _, rec := range recs {
				if !yield(rec, nil) {
					return
				}
			}
			if len(recs) < pageSize(page.Limit) {
				return
			}
			page.BeforeID = recs[len(recs)-1].ID
		}
	}
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
