package feed

import (
	"log"
	"strings"

	"gorm.io/gorm"

	"inkwell/models"
)

// Result carries the independently matched post and user sets for one search
// page. Posts are paginated; the user set rides along whole.
type Result struct {
	Posts      []models.Post
	Users      []models.User
	Page       int
	TotalPages int
	Empty      bool
}

// NormalizeQuery produces the two matching variants of a raw search segment.
// The exact variant keeps spacing with "%20" and "+" decoded to spaces; the
// no-space variant strips spaces and "+" entirely. Both are matched to absorb
// URL-encoding inconsistencies in the caller's query string.
func NormalizeQuery(raw string) (exact, noSpace string) {
	decoded := strings.ReplaceAll(raw, "%20", " ")
	noSpace = strings.NewReplacer(" ", "", "+", "").Replace(decoded)
	exact = strings.ReplaceAll(decoded, "+", " ")
	return exact, noSpace
}

// Search matches the query, case-insensitively and as a substring, against
// post tags, titles, and authors plus usernames. Post matches are unioned in
// tag, title, author priority (exact variant before no-space within each),
// deduplicated by identity preserving first-seen order, then paginated.
func (e *Engine) Search(raw string, page int) (Result, error) {
	exact, noSpace := NormalizeQuery(raw)
	log.Printf("Searching for query: %s", exact)

	users, err := e.searchUsers(exact, noSpace)
	if err != nil {
		return Result{}, err
	}

	var ordered []models.Post
	seen := map[int]bool{}
	for _, field := range []string{"tags", "title", "author"} {
		for _, variant := range []string{exact, noSpace} {
			matches, err := e.matchPosts(field, variant)
			if err != nil {
				return Result{}, err
			}
			for _, post := range matches {
				if !seen[post.ID] {
					seen[post.ID] = true
					ordered = append(ordered, post)
				}
			}
		}
	}

	items, page, totalPages := SlicePosts(ordered, page)

	return Result{
		Posts:      items,
		Users:      users,
		Page:       page,
		TotalPages: totalPages,
		Empty:      len(ordered) == 0 && len(users) == 0,
	}, nil
}

func (e *Engine) matchPosts(field, term string) ([]models.Post, error) {
	var posts []models.Post
	err := e.substringMatch(e.db.Model(&models.Post{}), field, term).
		Order("time_stamp desc").
		Find(&posts).Error
	return posts, err
}

func (e *Engine) searchUsers(exact, noSpace string) ([]models.User, error) {
	var ordered []models.User
	seen := map[int]bool{}

	for _, variant := range []string{exact, noSpace} {
		var users []models.User
		err := e.substringMatch(e.db.Model(&models.User{}), "username", variant).
			Find(&users).Error
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			if !seen[user.ID] {
				seen[user.ID] = true
				ordered = append(ordered, user)
			}
		}
	}

	return ordered, nil
}

// substringMatch filters by case-insensitive substring. LOWER on both sides
// keeps the behavior identical across sqlite and postgres.
func (e *Engine) substringMatch(query *gorm.DB, field, term string) *gorm.DB {
	pattern := "%" + strings.ToLower(term) + "%"
	return query.Where("LOWER("+field+") LIKE ?", pattern)
}
