package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/newsroom/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	Articles(ctx context.Context, category string) ([]model.Article, error)
	Categories() []string
}

// ArticleHandler はニュース記事一覧のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
	logger  *slog.Logger
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{service: service, logger: logger}
}

// articleResponse は記事のレスポンス。
type articleResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Source          string    `json:"source"`
	Category        string    `json:"category"`
	PublishedAt     time.Time `json:"published_at"`
	IsDateEstimated bool      `json:"is_date_estimated"`
	Author          string    `json:"author,omitempty"`
	Excerpt         string    `json:"excerpt,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
}

// ListArticles はカテゴリの記事一覧を新しい順に返す。
// GET /api/articles?category=all|world|technology|...
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := h.service.Articles(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]articleResponse, len(articles))
	for i, a := range articles {
		resp[i] = articleResponse{
			ID:              a.ID,
			Title:           a.Title,
			URL:             a.URL,
			Source:          a.Source,
			Category:        a.Category,
			PublishedAt:     a.PublishedAt,
			IsDateEstimated: a.DateEstimated,
			Author:          a.Author,
			Excerpt:         a.Excerpt,
			Thumbnail:       a.Thumbnail,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": resp})
}

// ListCategories は選択可能なカテゴリを返す。先頭は常にall。
// GET /api/articles/categories
func (h *ArticleHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := append([]string{model.CategoryAll}, h.service.Categories()...)
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}
