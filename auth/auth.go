package auth

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/email"
	"inkwell/models"
)

type AuthModule struct {
	db      *gorm.DB
	mail    *email.EmailService
	codes   *CodeStore // account verification codes
	resets  *CodeStore // password reset codes
	limiter *visitorLimiter
}

func NewAuthModule(db *gorm.DB) *AuthModule {
	return &AuthModule{
		db:      db,
		mail:    email.NewEmailService(),
		codes:   NewCodeStore(15 * time.Minute),
		resets:  NewCodeStore(15 * time.Minute),
		limiter: newVisitorLimiter(rate.Every(2*time.Second), 5),
	}
}

func (a *AuthModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/login", a.loginPage)
	router.POST("/login", a.limiter.rateLimit, a.loginPost)
	router.GET("/signup", a.signupPage)
	router.POST("/signup", a.limiter.rateLimit, a.signupPost)
	router.GET("/logout", a.logout)
	router.GET("/verify", a.verifyPage)
	router.POST("/verify", a.verifyPost)
	router.GET("/reset-password", a.resetPage)
	router.POST("/reset-password", a.limiter.rateLimit, a.resetRequest)
	router.POST("/reset-password/confirm", a.resetConfirm)
}

// RequireAuth redirects anonymous requests to the login page and exposes the
// acting username and role to downstream handlers.
func RequireAuth(c *gin.Context) {
	session := sessions.Default(c)
	username := session.Get("username")

	if username == nil {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}

	c.Set("username", username.(string))
	if role := session.Get("user_role"); role != nil {
		c.Set("user_role", role.(string))
	}
	c.Next()
}

func (a *AuthModule) loginPage(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get("username") != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{})
}

func (a *AuthModule) loginPost(c *gin.Context) {
	username := strings.ReplaceAll(c.PostForm("username"), " ", "")
	password := c.PostForm("password")

	var user models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		log.Printf("User %q not found", username)
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"error":    "Incorrect username or password",
			"username": username,
		})
		return
	}

	if !common.CheckPasswordHash(password, user.Password) {
		log.Println("Wrong password")
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"error":    "Incorrect username or password",
			"username": username,
		})
		return
	}

	session := sessions.Default(c)
	session.Set("username", user.Username)
	session.Set("user_role", user.Role)
	session.Save()

	common.AddPoints(a.db, user.Username, 1)
	log.Printf("User %q logged in", user.Username)

	if !user.IsVerified {
		a.sendVerificationCode(user)
		c.Redirect(http.StatusFound, "/verify")
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (a *AuthModule) signupPage(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get("username") != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.HTML(http.StatusOK, "signup.html", gin.H{})
}

func (a *AuthModule) signupPost(c *gin.Context) {
	username := strings.ReplaceAll(c.PostForm("username"), " ", "")
	emailAddr := c.PostForm("email")
	password := c.PostForm("password")

	formData := gin.H{
		"username": username,
		"email":    emailAddr,
	}

	if username == "" || emailAddr == "" || password == "" {
		formData["error"] = "All fields are required"
		c.HTML(http.StatusBadRequest, "signup.html", formData)
		return
	}

	// uniqueness is pre-checked case-insensitively; the unique columns are a
	// backstop, not the primary gate
	var existing models.User
	if err := a.db.Where("LOWER(username) = LOWER(?)", username).First(&existing).Error; err == nil {
		formData["error"] = "This username is already taken"
		c.HTML(http.StatusBadRequest, "signup.html", formData)
		return
	}
	if err := a.db.Where("LOWER(email) = LOWER(?)", emailAddr).First(&existing).Error; err == nil {
		formData["error"] = "This email is already registered"
		c.HTML(http.StatusBadRequest, "signup.html", formData)
		return
	}

	hash, err := common.HashPassword(password)
	if err != nil {
		formData["error"] = "Error creating account"
		c.HTML(http.StatusInternalServerError, "signup.html", formData)
		return
	}

	user := models.User{
		Username:       username,
		Email:          emailAddr,
		Password:       hash,
		ProfilePicture: defaultProfilePicture(username),
		Role:           "user",
		TimeStamp:      time.Now().Unix(),
	}

	if err := a.db.Create(&user).Error; err != nil {
		formData["error"] = "Error creating account"
		c.HTML(http.StatusInternalServerError, "signup.html", formData)
		return
	}

	log.Printf("User %q signed up", user.Username)

	session := sessions.Default(c)
	session.Set("username", user.Username)
	session.Set("user_role", user.Role)
	session.Save()

	a.sendVerificationCode(user)
	c.Redirect(http.StatusFound, "/verify")
}

func (a *AuthModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, "/")
}

func (a *AuthModule) verifyPage(c *gin.Context) {
	session := sessions.Default(c)
	username := session.Get("username")
	if username == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil || user.IsVerified {
		c.Redirect(http.StatusFound, "/")
		return
	}

	c.HTML(http.StatusOK, "verify.html", gin.H{"username": user.Username})
}

func (a *AuthModule) verifyPost(c *gin.Context) {
	session := sessions.Default(c)
	username := session.Get("username")
	if username == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	if !a.codes.Verify(user.Username, c.PostForm("code")) {
		c.HTML(http.StatusBadRequest, "verify.html", gin.H{
			"username": user.Username,
			"error":    "Wrong or expired code",
		})
		return
	}

	user.IsVerified = true
	if err := a.db.Save(&user).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "verify.html", gin.H{
			"username": user.Username,
			"error":    "Error verifying account",
		})
		return
	}

	log.Printf("User %q has been verified", user.Username)
	c.Redirect(http.StatusFound, "/")
}

func (a *AuthModule) resetPage(c *gin.Context) {
	c.HTML(http.StatusOK, "reset_password.html", gin.H{})
}

func (a *AuthModule) resetRequest(c *gin.Context) {
	emailAddr := c.PostForm("email")

	var user models.User
	if err := a.db.Where("LOWER(email) = LOWER(?)", emailAddr).First(&user).Error; err != nil {
		// do not reveal whether the address exists
		c.HTML(http.StatusOK, "reset_password.html", gin.H{"codeSent": true})
		return
	}

	code := a.resets.Issue(user.Username)
	if err := a.mail.SendPasswordResetCode(user.Email, code); err != nil {
		log.Printf("Error sending reset code to %q: %v", user.Email, err)
	}

	c.HTML(http.StatusOK, "reset_password.html", gin.H{
		"codeSent": true,
		"username": user.Username,
	})
}

func (a *AuthModule) resetConfirm(c *gin.Context) {
	username := c.PostForm("username")
	code := c.PostForm("code")
	password := c.PostForm("new_password")

	if !a.resets.Verify(username, code) {
		c.HTML(http.StatusBadRequest, "reset_password.html", gin.H{
			"codeSent": true,
			"username": username,
			"error":    "Wrong or expired code",
		})
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	hash, err := common.HashPassword(password)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "reset_password.html", gin.H{
			"error": "Error resetting password",
		})
		return
	}

	user.Password = hash
	if err := a.db.Save(&user).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "reset_password.html", gin.H{
			"error": "Error resetting password",
		})
		return
	}

	log.Printf("User %q reset their password", username)
	c.Redirect(http.StatusFound, "/login")
}

func (a *AuthModule) sendVerificationCode(user models.User) {
	code := a.codes.Issue(user.Username)
	if err := a.mail.SendVerificationCode(user.Email, code); err != nil {
		log.Printf("Error sending verification code to %q: %v", user.Email, err)
	}
}

func defaultProfilePicture(username string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/identicon/svg?seed=%s&radius=10", username)
}
