// Package admin is the moderation panel: paginated listings of every user,
// post and comment, with role changes and deletion. Admin role required.
package admin

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkwell/auth"
	"inkwell/cache"
	"inkwell/common"
	"inkwell/feed"
	"inkwell/models"
)

type AdminModule struct {
	db     *gorm.DB
	engine *feed.Engine
}

func NewAdminModule(db *gorm.DB) *AdminModule {
	return &AdminModule{
		db:     db,
		engine: feed.NewEngine(db),
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.RequireAuth, a.requireAdmin)
	{
		adminGroup.GET("", a.index)
		adminGroup.GET("/users", a.listUsers)
		adminGroup.POST("/users", a.usersAction)
		adminGroup.GET("/posts", a.listPosts)
		adminGroup.POST("/posts", a.postsAction)
		adminGroup.GET("/comments", a.listComments)
		adminGroup.POST("/comments", a.commentsAction)
	}
}

func (a *AdminModule) requireAdmin(c *gin.Context) {
	if c.GetString("user_role") != "admin" {
		c.Redirect(http.StatusFound, "/")
		c.Abort()
		return
	}
	c.Next()
}

func (a *AdminModule) index(c *gin.Context) {
	var userCount, postCount, commentCount int64
	a.db.Model(&models.User{}).Count(&userCount)
	a.db.Model(&models.Post{}).Count(&postCount)
	a.db.Model(&models.Comment{}).Count(&commentCount)

	c.HTML(http.StatusOK, "admin_index.html", gin.H{
		"user":         c.GetString("username"),
		"userCount":    userCount,
		"postCount":    postCount,
		"commentCount": commentCount,
	})
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return 1
	}
	return page
}

func (a *AdminModule) listUsers(c *gin.Context) {
	users, currentPage, totalPages, err := a.engine.AllUsers(pageParam(c))
	if err != nil {
		users = []models.User{}
	}

	c.HTML(http.StatusOK, "admin_users.html", gin.H{
		"user":        c.GetString("username"),
		"users":       users,
		"currentPage": currentPage,
		"totalPages":  totalPages,
	})
}

func (a *AdminModule) usersAction(c *gin.Context) {
	if username := c.PostForm("user_delete_button"); username != "" {
		if err := common.DeleteUser(a.db, username); err != nil {
			log.Printf("Error deleting user %q: %v", username, err)
		}
		c.Redirect(http.StatusFound, "/admin/users")
		return
	}

	if username := c.PostForm("user_role_change_button"); username != "" {
		a.toggleRole(c, username)
		return
	}

	c.Redirect(http.StatusFound, "/admin/users")
}

// toggleRole flips a user between admin and user. An admin demoting
// themselves loses the panel and lands back on the home page.
func (a *AdminModule) toggleRole(c *gin.Context, username string) {
	var user models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		c.Redirect(http.StatusFound, "/admin/users")
		return
	}

	if user.Role == "admin" {
		user.Role = "user"
	} else {
		user.Role = "admin"
	}

	if err := a.db.Save(&user).Error; err != nil {
		log.Printf("Error changing role for %q: %v", username, err)
		c.Redirect(http.StatusFound, "/admin/users")
		return
	}

	log.Printf("User %q role changed to %q", user.Username, user.Role)

	if strings.EqualFold(user.Username, c.GetString("username")) && user.Role != "admin" {
		session := sessions.Default(c)
		session.Set("user_role", user.Role)
		session.Save()
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.Redirect(http.StatusFound, "/admin/users")
}

func (a *AdminModule) listPosts(c *gin.Context) {
	posts, currentPage, totalPages, err := a.engine.AllPosts(pageParam(c))
	if err != nil {
		posts = []models.Post{}
	}

	c.HTML(http.StatusOK, "admin_posts.html", gin.H{
		"user":        c.GetString("username"),
		"posts":       posts,
		"currentPage": currentPage,
		"totalPages":  totalPages,
	})
}

func (a *AdminModule) postsAction(c *gin.Context) {
	if id, err := strconv.Atoi(c.PostForm("post_delete_button")); err == nil {
		var post models.Post
		if err := a.db.First(&post, id).Error; err == nil {
			if err := common.DeletePost(a.db, post.ID); err != nil {
				log.Printf("Error deleting post %d: %v", post.ID, err)
			}
			cache.ClearCache(post.URLID)
		}
	}

	c.Redirect(http.StatusFound, "/admin/posts")
}

func (a *AdminModule) listComments(c *gin.Context) {
	comments, currentPage, totalPages, err := a.engine.AllComments(pageParam(c))
	if err != nil {
		comments = []models.Comment{}
	}

	c.HTML(http.StatusOK, "admin_comments.html", gin.H{
		"user":        c.GetString("username"),
		"comments":    comments,
		"currentPage": currentPage,
		"totalPages":  totalPages,
	})
}

func (a *AdminModule) commentsAction(c *gin.Context) {
	if commentID := c.PostForm("comment_delete_button"); commentID != "" {
		if id, err := strconv.Atoi(commentID); err == nil {
			if err := common.DeleteComment(a.db, id); err != nil {
				log.Printf("Error deleting comment %d: %v", id, err)
			}
		}
	}

	c.Redirect(http.StatusFound, "/admin/comments")
}
