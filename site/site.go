package site

import (
	"bytes"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"

	"inkwell/analytics"
	"inkwell/auth"
	"inkwell/cache"
	"inkwell/common"
	"inkwell/feed"
	"inkwell/models"
	"inkwell/permalink"
)

type SiteModule struct {
	db        *gorm.DB
	engine    *feed.Engine
	analytics *analytics.Module
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // allow raw HTML passthrough in Markdown
	),
)

func NewSiteModule(db *gorm.DB, analyticsModule *analytics.Module) *SiteModule {
	return &SiteModule{
		db:        db,
		engine:    feed.NewEngine(db),
		analytics: analyticsModule,
	}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.index)
	router.GET("/:by/:sort", s.index)
	router.GET("/category/:category", s.category)
	router.GET("/category/:category/:by/:sort", s.category)
	router.GET("/search/:query", s.search)
	router.GET("/post/:ref", s.post)
	router.POST("/post/:ref", auth.RequireAuth, s.postAction)
	router.GET("/user/:username", s.profile)
	router.GET("/post-image/:urlid", s.postImage)
}

// sortParams reads the /by=<column>/sort=<direction> path segments, falling
// back to the given sort key when absent. The home feed defaults to hot
// ranking; category pages default to newest-first.
func sortParams(c *gin.Context, defaultBy string) (by, sortDir string) {
	by = strings.TrimPrefix(c.Param("by"), "by=")
	sortDir = strings.TrimPrefix(c.Param("sort"), "sort=")

	if by == "" {
		by = defaultBy
	}
	if sortDir == "" {
		sortDir = "desc"
	}
	return by, sortDir
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return 1
	}
	return page
}

func (s *SiteModule) index(c *gin.Context) {
	by, sortDir := sortParams(c, feed.SortHot)
	page := pageParam(c)

	posts, currentPage, totalPages, err := s.engine.HomePosts(by, sortDir, page)
	if err != nil {
		log.Printf("Invalid sort %q/%q requested, falling back", by, sortDir)
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"posts":       posts,
		"by":          by,
		"sort":        sortDir,
		"currentPage": currentPage,
		"totalPages":  totalPages,
		"user":        currentUsername(c),
	})
}

func (s *SiteModule) category(c *gin.Context) {
	categoryName := c.Param("category")
	by, sortDir := sortParams(c, "time_stamp")
	page := pageParam(c)

	posts, currentPage, totalPages, err := s.engine.CategoryPosts(categoryName, by, sortDir, page)
	switch err {
	case nil:
	case feed.ErrUnknownCategory:
		c.HTML(http.StatusNotFound, "not_found.html", gin.H{})
		return
	default:
		log.Printf("Invalid sort %q/%q for category %q, falling back", by, sortDir, categoryName)
		c.Redirect(http.StatusFound, "/category/"+categoryName)
		return
	}

	c.HTML(http.StatusOK, "category.html", gin.H{
		"category":    categoryName,
		"posts":       posts,
		"by":          by,
		"sort":        sortDir,
		"currentPage": currentPage,
		"totalPages":  totalPages,
		"user":        currentUsername(c),
	})
}

func (s *SiteModule) search(c *gin.Context) {
	query := c.Param("query")
	page := pageParam(c)

	result, err := s.engine.Search(query, page)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "search.html", gin.H{
			"query": query,
			"error": "Search failed",
		})
		return
	}

	c.HTML(http.StatusOK, "search.html", gin.H{
		"query":       query,
		"posts":       result.Posts,
		"users":       result.Users,
		"empty":       result.Empty,
		"currentPage": result.Page,
		"totalPages":  result.TotalPages,
		"user":        currentUsername(c),
	})
}

func (s *SiteModule) post(c *gin.Context) {
	slug, urlID := permalink.Split(c.Param("ref"))

	var post models.Post
	if err := s.db.Where("url_id = ?", urlID).First(&post).Error; err != nil {
		c.HTML(http.StatusNotFound, "not_found.html", gin.H{})
		return
	}

	// stale or missing slugs redirect to the canonical address
	if slug != permalink.Slug(post.Title) {
		c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
		return
	}

	// every read counts, even refreshes
	s.db.Model(&post).UpdateColumn("views", gorm.Expr("COALESCE(views, 0) + 1"))
	post.Views++

	s.analytics.TrackVisit(c, post.ID)

	var comments []models.Comment
	s.db.Where("post_id = ?", post.ID).Order("time_stamp desc").Find(&comments)

	var author models.User
	s.db.Where("LOWER(username) = LOWER(?)", post.Author).First(&author)

	c.HTML(http.StatusOK, "post.html", gin.H{
		"post":        post,
		"contentHTML": template.HTML(renderMarkdown(post.Content)),
		"comments":    comments,
		"author":      author,
		"user":        currentUsername(c),
		"role":        currentRole(c),
	})
}

// postAction handles the post page form: new comments plus the inline delete
// buttons for the post and its comments.
func (s *SiteModule) postAction(c *gin.Context) {
	_, urlID := permalink.Split(c.Param("ref"))

	var post models.Post
	if err := s.db.Where("url_id = ?", urlID).First(&post).Error; err != nil {
		c.HTML(http.StatusNotFound, "not_found.html", gin.H{})
		return
	}

	username := c.GetString("username")
	role := c.GetString("user_role")

	if commentID := c.PostForm("comment_delete_button"); commentID != "" {
		s.deleteComment(c, post, commentID, username, role)
		return
	}

	if c.PostForm("post_delete_button") != "" {
		if username != post.Author && role != "admin" {
			c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
			return
		}
		if err := common.DeletePost(s.db, post.ID); err != nil {
			log.Printf("Error deleting post %d: %v", post.ID, err)
		}
		cache.ClearCache(post.URLID)
		c.Redirect(http.StatusFound, "/")
		return
	}

	text := strings.TrimSpace(c.PostForm("comment"))
	if text == "" {
		c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
		return
	}

	comment := models.Comment{
		PostID:    post.ID,
		Comment:   text,
		Username:  username,
		TimeStamp: time.Now().Unix(),
	}
	if err := s.db.Create(&comment).Error; err != nil {
		log.Printf("Error creating comment: %v", err)
	} else {
		common.AddPoints(s.db, username, 5)
	}

	c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
}

func (s *SiteModule) deleteComment(c *gin.Context, post models.Post, commentID, username, role string) {
	id, err := strconv.Atoi(commentID)
	if err != nil {
		c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
		return
	}

	var comment models.Comment
	if err := s.db.First(&comment, id).Error; err == nil {
		if comment.Username == username || role == "admin" {
			if err := common.DeleteComment(s.db, comment.ID); err != nil {
				log.Printf("Error deleting comment %d: %v", comment.ID, err)
			}
		}
	}

	c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
}

func (s *SiteModule) profile(c *gin.Context) {
	username := c.Param("username")
	page := pageParam(c)

	var user models.User
	if err := s.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		c.HTML(http.StatusNotFound, "not_found.html", gin.H{})
		return
	}

	posts, currentPage, totalPages, err := s.engine.AuthorPosts(user.Username, page)
	if err != nil {
		posts = []models.Post{}
	}

	var totalViews int64
	s.db.Model(&models.Post{}).
		Where("LOWER(author) = LOWER(?)", user.Username).
		Select("COALESCE(SUM(views), 0)").
		Scan(&totalViews)

	var comments []models.Comment
	s.db.Where("LOWER(username) = LOWER(?)", user.Username).
		Order("time_stamp desc").Find(&comments)

	c.HTML(http.StatusOK, "profile.html", gin.H{
		"profile":     user,
		"posts":       posts,
		"totalViews":  totalViews,
		"comments":    comments,
		"currentPage": currentPage,
		"totalPages":  totalPages,
		"user":        currentUsername(c),
	})
}

func (s *SiteModule) postImage(c *gin.Context) {
	urlID := c.Param("urlid")

	var post models.Post
	if err := s.db.Select("banner").Where("url_id = ?", urlID).First(&post).Error; err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	if len(post.Banner) == 0 {
		c.Status(http.StatusNotFound)
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(post.Banner), post.Banner)
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return buf.String()
}

func currentUsername(c *gin.Context) string {
	session := sessions.Default(c)
	if username := session.Get("username"); username != nil {
		return username.(string)
	}
	return ""
}

func currentRole(c *gin.Context) string {
	session := sessions.Default(c)
	if role := session.Get("user_role"); role != nil {
		return role.(string)
	}
	return ""
}
