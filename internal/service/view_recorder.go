package service

import (
	"context"
	"time"

	"storefront-service/internal/config"
	"storefront-service/internal/kv"
	"storefront-service/internal/repository"
)

const viewMarkerPrefix = "storefront:view:"

// ViewRecorder counts at most one view per session and article. A failed
// counter write drops the session marker so a later view can count;
// undercounting is accepted, double counting is not.
type ViewRecorder struct {
	articles *repository.ArticleRepository
	markers  kv.Store
	mode     string
	ttl      time.Duration
}

func NewViewRecorder(articles *repository.ArticleRepository, markers kv.Store, mode string, ttl time.Duration) *ViewRecorder {
	return &ViewRecorder{articles: articles, markers: markers, mode: mode, ttl: ttl}
}

func viewMarkerKey(sessionID, articleID string) string {
	return viewMarkerPrefix + sessionID + ":" + articleID
}

// RecordView reports whether this call incremented the article's views.
func (r *ViewRecorder) RecordView(ctx context.Context, sessionID, articleID string) (bool, error) {
	if sessionID == "" {
		return false, ErrSessionRequired
	}

	key := viewMarkerKey(sessionID, articleID)
	reserved, err := r.markers.SetNX(ctx, key, "1", r.ttl)
	if err != nil {
		logger.Error().Err(err).Msgf("Error reserving view marker for article %s", articleID)
		return false, err
	}
	if !reserved {
		return false, nil
	}

	if err := r.increment(ctx, articleID); err != nil {
		logger.Warn().Err(err).Msgf("View for article %s not recorded", articleID)
		if delErr := r.markers.Del(context.Background(), key); delErr != nil {
			logger.Error().Err(delErr).Msgf("Error clearing view marker for article %s", articleID)
		}
		return false, err
	}
	return true, nil
}

func (r *ViewRecorder) increment(ctx context.Context, articleID string) error {
	if r.mode == config.ModeReadModifyWrite {
		article, err := r.articles.GetArticleByID(ctx, articleID)
		if err != nil {
			return err
		}
		return r.articles.SetViews(ctx, articleID, article.Views+1)
	}
	return r.articles.IncrementViews(ctx, articleID)
}
