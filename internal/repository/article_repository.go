package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/entity"
	"storefront-service/internal/store"
)

const articlesTable = "articles"

var ErrArticleNotFound = errors.New("article not found")

type ArticleRepository struct {
	store store.Store
}

func NewArticleRepository(s store.Store) *ArticleRepository {
	return &ArticleRepository{store: s}
}

func (r *ArticleRepository) GetArticleByID(ctx context.Context, id string) (*entity.Article, error) {
	rows, err := r.store.Select(ctx, articlesTable, store.Filter{store.Eq("id", id)})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	views, err := rows[0].Int("views")
	if err != nil {
		return nil, err
	}
	return &entity.Article{
		ID:    rows[0].String("id"),
		Title: rows[0].String("title"),
		Views: views,
	}, nil
}

// IncrementViews adds one view inside a single statement.
func (r *ArticleRepository) IncrementViews(ctx context.Context, id string) error {
	affected, err := r.store.Update(ctx, articlesTable,
		store.Filter{store.Eq("id", id)},
		store.Patch{"views": store.Add(1)})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	return nil
}

func (r *ArticleRepository) SetViews(ctx context.Context, id string, views int64) error {
	affected, err := r.store.Update(ctx, articlesTable,
		store.Filter{store.Eq("id", id)},
		store.Patch{"views": views})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	return nil
}
