// Package feed orders, filters, and paginates the post collection. It owns
// the sort-key resolution for the home feed and category pages, the hot
// ranking formula, the dual-variant free-text search, and the fixed-size
// pagination contract shared by store-side and in-memory result sets.
package feed

import (
	"errors"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkwell/models"
)

// PerPage is the fixed page size for every paginated listing.
const PerPage = 9

const (
	hotGravity = 1.8
	hotOffset  = 2.0
)

var (
	// ErrInvalidSort means the caller passed an unrecognized sort key or
	// direction. Handlers recover by redirecting to the canonical view.
	ErrInvalidSort = errors.New("feed: invalid sort specification")

	// ErrUnknownCategory means the requested category is not in the
	// allow-list. Handlers surface this as a not-found condition.
	ErrUnknownCategory = errors.New("feed: unknown category")
)

// SortHot is the derived ranking key; every other key maps directly to a
// column in sortColumns.
const SortHot = "hot"

// sortColumns is the explicit sort-key to column mapping. Anything outside
// this map (plus SortHot where allowed) is an invalid sort specification.
var sortColumns = map[string]string{
	"time_stamp":           "time_stamp",
	"title":                "title",
	"views":                "views",
	"category":             "category",
	"last_edit_time_stamp": "last_edit_time_stamp",
}

// Categories is the fixed allow-list for post categories.
var Categories = []string{
	"games", "history", "science", "code", "technology",
	"education", "sports", "foods", "health", "apps",
	"movies", "series", "travel", "books", "music",
	"nature", "art", "finance", "business", "web", "other",
}

// IsCategory reports whether name is in the allow-list, case-insensitively.
func IsCategory(name string) bool {
	lower := strings.ToLower(name)
	for _, c := range Categories {
		if c == lower {
			return true
		}
	}
	return false
}

type Engine struct {
	db *gorm.DB

	// now is injectable so hot-score ordering is deterministic under test.
	now func() int64
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:  db,
		now: func() int64 { return time.Now().Unix() },
	}
}

/// HotScore is the pure form of the ranking formula: views decayed by age in
// hours with a fixed gravity exponent. The offset keeps brand-new posts from
// dominating on recency alone.
func HotScore(views int64, ageHours float64) float64 {
	return float64(views) / math.Pow(ageHours+hotOffset, hotGravity)
}

// hotScoreSQL is the store-side equivalent of HotScore, used for ordering
// pushdown on postgres. The single placeholder is the current epoch second.
// Constants here must match HotScore exactly.
const hotScoreSQL = "COALESCE(views, 0) / POWER((? - time_stamp) / 3600.0 + 2, 1.8)"

// HomePosts returns one page of the home feed ordered by the requested key
// and direction. The "hot" key is resolved through the ranking formula;
// every other key is pushed down to the store.
func (e *Engine) HomePosts(by, sortDir string, page int) ([]models.Post, int, int, error) {
	if err := validateSort(by, sortDir, true); err != nil {
		log.Printf("The provided sorting options are not valid: by: %q sort: %q", by, sortDir)
		return nil, 0, 0, err
	}

	if by == SortHot {
		return e.hotPosts(e.db.Model(&models.Post{}), sortDir, page)
	}

	query := e.db.Model(&models.Post{}).Order(sortColumns[by] + " " + direction(sortDir))
	return e.paginatePosts(query, page)
}

// CategoryPosts returns one page of a category listing. The category must be
// in the allow-list; the "hot" key is not offered on category pages.
func (e *Engine) CategoryPosts(category, by, sortDir string, page int) ([]models.Post, int, int, error) {
	if err := validateSort(by, sortDir, false); err != nil {
		log.Printf("The provided sorting options are not valid: by: %q sort: %q", by, sortDir)
		return nil, 0, 0, err
	}

	if !IsCategory(category) {
		return nil, 0, 0, ErrUnknownCategory
	}

	query := e.db.Model(&models.Post{}).
		Where("LOWER(category) = ?", strings.ToLower(category)).
		Order(sortColumns[by] + " " + direction(sortDir))
	return e.paginatePosts(query, page)
}

// AuthorPosts returns one page of a single author's posts, newest first.
func (e *Engine) AuthorPosts(author string, page int) ([]models.Post, int, int, error) {
	query := e.db.Model(&models.Post{}).
		Where("author = ?", author).
		Order("time_stamp desc")
	return e.paginatePosts(query, page)
}

// AllPosts returns one page over every post, newest first.
func (e *Engine) AllPosts(page int) ([]models.Post, int, int, error) {
	query := e.db.Model(&models.Post{}).Order("time_stamp desc")
	return e.paginatePosts(query, page)
}

// AllUsers returns one page over every user account.
func (e *Engine) AllUsers(page int) ([]models.User, int, int, error) {
	var users []models.User
	page, totalPages, err := e.paginate(e.db.Model(&models.User{}).Order("id"), page, &users)
	return users, page, totalPages, err
}

// AllComments returns one page over every comment, newest first.
func (e *Engine) AllComments(page int) ([]models.Comment, int, int, error) {
	var comments []models.Comment
	page, totalPages, err := e.paginate(
		e.db.Model(&models.Comment{}).Order("time_stamp desc"), page, &comments)
	return comments, page, totalPages, err
}

// hotPosts orders by the ranking formula. On postgres the score is computed
// by the store; elsewhere the rows are scored in application code with a
// stable sort so floating-point ties keep insertion order.
func (e *Engine) hotPosts(query *gorm.DB, sortDir string, page int) ([]models.Post, int, int, error) {
	if e.db.Dialector.Name() == "postgres" {
		ordered := query.Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                hotScoreSQL + " " + direction(sortDir),
				Vars:               []interface{}{e.now()},
				WithoutParentheses: true,
			},
		})
		return e.paginatePosts(ordered, page)
	}

	var posts []models.Post
	if err := query.Order("id").Find(&posts).Error; err != nil {
		return nil, 0, 0, err
	}

	now := e.now()
	type scored struct {
		post  models.Post
		score float64
	}
	ranked := make([]scored, len(posts))
	for i, p := range posts {
		ranked[i] = scored{post: p, score: HotScore(p.Views, float64(now-p.TimeStamp)/3600)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if sortDir == "asc" {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].score > ranked[j].score
	})

	for i, r := range ranked {
		posts[i] = r.post
	}

	items, page, totalPages := SlicePosts(posts, page)
	return items, page, totalPages, nil
}

func validateSort(by, sortDir string, allowHot bool) error {
	if sortDir != "asc" && sortDir != "desc" {
		return ErrInvalidSort
	}
	if _, ok := sortColumns[by]; ok {
		return nil
	}
	if allowHot && by == SortHot {
		return nil
	}
	return ErrInvalidSort
}

func direction(sortDir string) string {
	if sortDir == "asc" {
		return "asc"
	}
	return "desc"
}

// paginate applies the shared pagination contract to a store-side query:
// 1-based page clamped to >= 1, past-the-end pages come back empty, and
// totalPages is ceil(count/PerPage) with a minimum of 1.
func (e *Engine) paginate(query *gorm.DB, page int, dest interface{}) (int, int, error) {
	if page < 1 {
		page = 1
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, 0, err
	}

	totalPages := int((total + PerPage - 1) / PerPage)
	if totalPages < 1 {
		totalPages = 1
	}

	offset := (page - 1) * PerPage
	if err := query.Offset(offset).Limit(PerPage).Find(dest).Error; err != nil {
		return 0, 0, err
	}

	return page, totalPages, nil
}

func (e *Engine) paginatePosts(query *gorm.DB, page int) ([]models.Post, int, int, error) {
	var posts []models.Post
	page, totalPages, err := e.paginate(query, page, &posts)
	return posts, page, totalPages, err
}

// SlicePosts applies the same pagination contract to an in-memory, already
// ordered collection.
func SlicePosts(posts []models.Post, page int) ([]models.Post, int, int) {
	if page < 1 {
		page = 1
	}

	totalPages := (len(posts) + PerPage - 1) / PerPage
	if totalPages < 1 {
		totalPages = 1
	}

	offset := (page - 1) * PerPage
	if offset >= len(posts) {
		return []models.Post{}, page, totalPages
	}

	end := offset + PerPage
	if end > len(posts) {
		end = len(posts)
	}
	return posts[offset:end], page, totalPages
}
