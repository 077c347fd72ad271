// Package backoffice holds the authoring surface: post creation and editing,
// the author dashboard and account settings. Every route requires a session.
package backoffice

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkwell/analytics"
	"inkwell/auth"
	"inkwell/cache"
	"inkwell/common"
	"inkwell/feed"
	"inkwell/models"
	"inkwell/permalink"
)

const maxBannerBytes = 8 << 20

type BackofficeModule struct {
	db        *gorm.DB
	engine    *feed.Engine
	analytics *analytics.Module
}

func NewBackofficeModule(db *gorm.DB, analyticsModule *analytics.Module) *BackofficeModule {
	return &BackofficeModule{
		db:        db,
		engine:    feed.NewEngine(db),
		analytics: analyticsModule,
	}
}

func (b *BackofficeModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/", auth.RequireAuth)
	group.GET("/create-post", b.createPostPage)
	group.POST("/create-post", b.createPost)
	group.GET("/edit-post/:urlid", b.editPostPage)
	group.POST("/edit-post/:urlid", b.editPost)
	group.GET("/dashboard/:username", b.dashboard)
	group.POST("/dashboard/:username", b.dashboardAction)
	group.GET("/account-settings", b.accountSettings)
	group.POST("/account-settings", b.accountSettingsAction)
	group.GET("/change-username", b.changeUsernamePage)
	group.POST("/change-username", b.changeUsername)
	group.GET("/change-password", b.changePasswordPage)
	group.POST("/change-password", b.changePassword)
	group.GET("/change-profile-picture", b.changeProfilePicturePage)
	group.POST("/change-profile-picture", b.changeProfilePicture)
}

func (b *BackofficeModule) createPostPage(c *gin.Context) {
	c.HTML(http.StatusOK, "create_post.html", gin.H{
		"categories": feed.Categories,
		"user":       c.GetString("username"),
	})
}

func (b *BackofficeModule) createPost(c *gin.Context) {
	username := c.GetString("username")

	title := strings.TrimSpace(c.PostForm("title"))
	tags := strings.TrimSpace(c.PostForm("tags"))
	content := strings.TrimSpace(c.PostForm("content"))
	abstract := strings.TrimSpace(c.PostForm("abstract"))
	category := c.PostForm("category")

	formData := gin.H{
		"categories": feed.Categories,
		"title":      title,
		"tags":       tags,
		"content":    content,
		"abstract":   abstract,
		"category":   category,
		"user":       username,
	}

	if title == "" || content == "" || abstract == "" {
		formData["error"] = "Title, content and abstract are required"
		c.HTML(http.StatusBadRequest, "create_post.html", formData)
		return
	}

	if !feed.IsCategory(category) {
		formData["error"] = "Unknown category"
		c.HTML(http.StatusBadRequest, "create_post.html", formData)
		return
	}

	banner, err := b.readBanner(c)
	if err != nil {
		formData["error"] = "Could not read banner image"
		c.HTML(http.StatusBadRequest, "create_post.html", formData)
		return
	}

	urlID, err := permalink.NewID(func(candidate string) bool {
		var count int64
		b.db.Model(&models.Post{}).Where("url_id = ?", candidate).Count(&count)
		return count > 0
	})
	if err != nil {
		log.Printf("Error generating post identifier: %v", err)
		formData["error"] = "Error creating post"
		c.HTML(http.StatusInternalServerError, "create_post.html", formData)
		return
	}

	post := models.Post{
		Title:     title,
		Tags:      tags,
		Content:   content,
		Abstract:  abstract,
		Category:  category,
		Banner:    banner,
		Author:    username,
		TimeStamp: time.Now().Unix(),
		URLID:     urlID,
	}

	if err := b.db.Create(&post).Error; err != nil {
		log.Printf("Error creating post: %v", err)
		formData["error"] = "Error creating post"
		c.HTML(http.StatusInternalServerError, "create_post.html", formData)
		return
	}

	common.AddPoints(b.db, username, 20)
	log.Printf("User %q created post %q", username, urlID)

	c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
}

func (b *BackofficeModule) editPostPage(c *gin.Context) {
	post, ok := b.ownedPost(c)
	if !ok {
		return
	}

	c.HTML(http.StatusOK, "edit_post.html", gin.H{
		"post":       post,
		"categories": feed.Categories,
		"user":       c.GetString("username"),
	})
}

func (b *BackofficeModule) editPost(c *gin.Context) {
	post, ok := b.ownedPost(c)
	if !ok {
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	tags := strings.TrimSpace(c.PostForm("tags"))
	content := strings.TrimSpace(c.PostForm("content"))
	abstract := strings.TrimSpace(c.PostForm("abstract"))
	category := c.PostForm("category")

	formData := gin.H{
		"post":       post,
		"categories": feed.Categories,
		"user":       c.GetString("username"),
	}

	if title == "" || content == "" || abstract == "" {
		formData["error"] = "Title, content and abstract are required"
		c.HTML(http.StatusBadRequest, "edit_post.html", formData)
		return
	}

	if !feed.IsCategory(category) {
		formData["error"] = "Unknown category"
		c.HTML(http.StatusBadRequest, "edit_post.html", formData)
		return
	}

	now := time.Now().Unix()
	post.Title = title
	post.Tags = tags
	post.Content = content
	post.Abstract = abstract
	post.Category = category
	post.LastEditTimeStamp = &now

	// the identifier never changes on edit, old links keep resolving
	if banner, err := b.readBanner(c); err == nil && len(banner) > 0 {
		post.Banner = banner
		cache.ClearCache(post.URLID)
	}

	if err := b.db.Save(&post).Error; err != nil {
		log.Printf("Error saving post %q: %v", post.URLID, err)
		formData["error"] = "Error saving post"
		c.HTML(http.StatusInternalServerError, "edit_post.html", formData)
		return
	}

	c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
}

// ownedPost loads the post in :urlid and checks the session user may edit it.
// On failure it writes the response and returns ok=false.
func (b *BackofficeModule) ownedPost(c *gin.Context) (models.Post, bool) {
	var post models.Post
	if err := b.db.Where("url_id = ?", c.Param("urlid")).First(&post).Error; err != nil {
		c.HTML(http.StatusNotFound, "not_found.html", gin.H{})
		return post, false
	}

	username := c.GetString("username")
	role := c.GetString("user_role")
	if !strings.EqualFold(post.Author, username) && role != "admin" {
		c.Redirect(http.StatusFound, "/post/"+permalink.Canonical(post.Title, post.URLID))
		c.Abort()
		return post, false
	}

	return post, true
}

func (b *BackofficeModule) readBanner(c *gin.Context) ([]byte, error) {
	file, err := c.FormFile("banner")
	if err != nil {
		// missing file or no multipart body at all, the banner stays unset
		return nil, nil
	}

	if file.Size > maxBannerBytes {
		return nil, nil
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return io.ReadAll(src)
}

func (b *BackofficeModule) dashboard(c *gin.Context) {
	username := c.GetString("username")

	// authors only see their own dashboard
	if !strings.EqualFold(c.Param("username"), username) {
		c.Redirect(http.StatusFound, "/dashboard/"+username)
		return
	}

	page := 1
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = p
	}

	posts, currentPage, totalPages, err := b.engine.AuthorPosts(username, page)
	if err != nil {
		posts = []models.Post{}
	}

	var comments []models.Comment
	b.db.Where("LOWER(username) = LOWER(?)", username).
		Order("time_stamp desc").Find(&comments)

	var postIDs []int
	b.db.Model(&models.Post{}).
		Where("LOWER(author) = LOWER(?)", username).
		Pluck("id", &postIDs)

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"user":        username,
		"posts":       posts,
		"comments":    comments,
		"currentPage": currentPage,
		"totalPages":  totalPages,
		"visitsByDay": b.analytics.GetVisitsByDay(postIDs, 30),
		"topPosts":    b.analytics.GetTopPosts(postIDs, 30, 5),
	})
}

func (b *BackofficeModule) dashboardAction(c *gin.Context) {
	username := c.GetString("username")
	role := c.GetString("user_role")

	if id, err := strconv.Atoi(c.PostForm("post_delete_button")); err == nil {
		var post models.Post
		if err := b.db.First(&post, id).Error; err == nil {
			if strings.EqualFold(post.Author, username) || role == "admin" {
				if err := common.DeletePost(b.db, post.ID); err != nil {
					log.Printf("Error deleting post %d: %v", post.ID, err)
				}
				cache.ClearCache(post.URLID)
			}
		}
	}

	if id, err := strconv.Atoi(c.PostForm("comment_delete_button")); err == nil {
		var comment models.Comment
		if err := b.db.First(&comment, id).Error; err == nil {
			if comment.Username == username || role == "admin" {
				if err := common.DeleteComment(b.db, comment.ID); err != nil {
					log.Printf("Error deleting comment %d: %v", comment.ID, err)
				}
			}
		}
	}

	c.Redirect(http.StatusFound, "/dashboard/"+username)
}

func (b *BackofficeModule) accountSettings(c *gin.Context) {
	username := c.GetString("username")

	var user models.User
	if err := b.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		c.Redirect(http.StatusFound, "/logout")
		return
	}

	c.HTML(http.StatusOK, "account_settings.html", gin.H{
		"user":    username,
		"account": user,
	})
}

func (b *BackofficeModule) changeUsernamePage(c *gin.Context) {
	c.HTML(http.StatusOK, "change_username.html", gin.H{
		"user": c.GetString("username"),
	})
}

// changeUsername renames the account and follows the denormalized author
// strings through posts and comments in the same request.
func (b *BackofficeModule) changeUsername(c *gin.Context) {
	username := c.GetString("username")
	newUsername := strings.ReplaceAll(c.PostForm("new_username"), " ", "")

	if newUsername == "" {
		c.HTML(http.StatusBadRequest, "change_username.html", gin.H{
			"user":  username,
			"error": "Username is required",
		})
		return
	}

	var existing models.User
	if err := b.db.Where("LOWER(username) = LOWER(?)", newUsername).First(&existing).Error; err == nil {
		c.HTML(http.StatusBadRequest, "change_username.html", gin.H{
			"user":  username,
			"error": "This username is already taken",
		})
		return
	}

	var user models.User
	if err := b.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		c.Redirect(http.StatusFound, "/logout")
		return
	}

	user.Username = newUsername
	if err := b.db.Save(&user).Error; err != nil {
		log.Printf("Error renaming user %q: %v", username, err)
		c.HTML(http.StatusInternalServerError, "change_username.html", gin.H{
			"user":  username,
			"error": "Error changing username",
		})
		return
	}

	b.db.Model(&models.Post{}).Where("author = ?", username).
		Update("author", newUsername)
	b.db.Model(&models.Comment{}).Where("username = ?", username).
		Update("username", newUsername)

	log.Printf("User %q changed their username to %q", username, newUsername)

	session := sessions.Default(c)
	session.Set("username", newUsername)
	session.Save()

	c.Redirect(http.StatusFound, "/account-settings")
}

func (b *BackofficeModule) changePasswordPage(c *gin.Context) {
	c.HTML(http.StatusOK, "change_password.html", gin.H{
		"user": c.GetString("username"),
	})
}

// changePassword verifies the current password, rejects reuse and mismatched
// confirmations, and logs the user out so they sign in with the new one.
func (b *BackofficeModule) changePassword(c *gin.Context) {
	username := c.GetString("username")
	oldPassword := c.PostForm("old_password")
	password := c.PostForm("password")
	passwordConfirm := c.PostForm("password_confirm")

	var user models.User
	if err := b.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		c.Redirect(http.StatusFound, "/logout")
		return
	}

	if !common.CheckPasswordHash(oldPassword, user.Password) {
		c.HTML(http.StatusBadRequest, "change_password.html", gin.H{
			"user":  username,
			"error": "Current password is wrong",
		})
		return
	}

	if oldPassword == password {
		c.HTML(http.StatusBadRequest, "change_password.html", gin.H{
			"user":  username,
			"error": "New password must differ from the current one",
		})
		return
	}

	if password != passwordConfirm {
		c.HTML(http.StatusBadRequest, "change_password.html", gin.H{
			"user":  username,
			"error": "Passwords do not match",
		})
		return
	}

	hash, err := common.HashPassword(password)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "change_password.html", gin.H{
			"user":  username,
			"error": "Error changing password",
		})
		return
	}

	user.Password = hash
	if err := b.db.Save(&user).Error; err != nil {
		log.Printf("Error changing password for %q: %v", username, err)
		c.HTML(http.StatusInternalServerError, "change_password.html", gin.H{
			"user":  username,
			"error": "Error changing password",
		})
		return
	}

	log.Printf("User %q changed their password", username)

	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, "/login")
}

func (b *BackofficeModule) changeProfilePicturePage(c *gin.Context) {
	c.HTML(http.StatusOK, "change_profile_picture.html", gin.H{
		"user": c.GetString("username"),
	})
}

func (b *BackofficeModule) changeProfilePicture(c *gin.Context) {
	username := c.GetString("username")
	seed := strings.TrimSpace(c.PostForm("new_profile_picture_seed"))

	if seed == "" {
		c.HTML(http.StatusBadRequest, "change_profile_picture.html", gin.H{
			"user":  username,
			"error": "Seed is required",
		})
		return
	}

	picture := fmt.Sprintf("https://api.dicebear.com/7.x/identicon/svg?seed=%s&radius=10", seed)

	result := b.db.Model(&models.User{}).
		Where("LOWER(username) = LOWER(?)", username).
		Update("profile_picture", picture)
	if result.Error != nil {
		log.Printf("Error changing profile picture for %q: %v", username, result.Error)
		c.HTML(http.StatusInternalServerError, "change_profile_picture.html", gin.H{
			"user":  username,
			"error": "Error changing profile picture",
		})
		return
	}

	log.Printf("User %q changed their profile picture", username)
	c.Redirect(http.StatusFound, "/account-settings")
}

func (b *BackofficeModule) accountSettingsAction(c *gin.Context) {
	username := c.GetString("username")

	if c.PostForm("delete_account_button") == "" {
		c.Redirect(http.StatusFound, "/account-settings")
		return
	}

	if err := common.DeleteUser(b.db, username); err != nil {
		log.Printf("Error deleting account %q: %v", username, err)
		c.Redirect(http.StatusFound, "/account-settings")
		return
	}

	log.Printf("User %q deleted their account", username)

	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, "/")
}
