package auth

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/models"
)

func setupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{})
	return db
}

func setupTestRouter(authModule *AuthModule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.SetHTMLTemplate(stubTemplates())
	store := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", store))
	authModule.RegisterRoutes(router)
	return router
}

func stubTemplates() *template.Template {
	tmpl := template.New("")
	for _, name := range []string{"login.html", "signup.html", "verify.html", "reset_password.html"} {
		template.Must(tmpl.New(name).Parse("ok"))
	}
	return tmpl
}

func createTestUser(db *gorm.DB, username string, verified bool) *models.User {
	hash, _ := common.HashPassword("password123")
	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   hash,
		Role:       "user",
		TimeStamp:  time.Now().Unix(),
		IsVerified: verified,
	}
	db.Create(user)
	return user
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPasswordHashing(t *testing.T) {
	hash, err := common.HashPassword("testpassword")
	assert.NoError(t, err)

	assert.True(t, common.CheckPasswordHash("testpassword", hash))
	assert.False(t, common.CheckPasswordHash("wrongpassword", hash))
}

func TestLoginPost_Success(t *testing.T) {
	db := setupTestDB()
	authModule := NewAuthModule(db)
	router := setupTestRouter(authModule)

	createTestUser(db, "alice", true)

	w := postForm(router, "/login", url.Values{
		"username": {"alice"},
		"password": {"password123"},
	})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	// login credits a point
	var user models.User
	db.Where("username = ?", "alice").First(&user)
	assert.Equal(t, 1, user.Points)
}

func TestLoginPost_CaseInsensitiveAndSpaceStripped(t *testing.T) {
	db := setupTestDB()
	authModule := NewAuthModule(db)
	router := setupTestRouter(authModule)

	createTestUser(db, "Alice", true)

	w := postForm(router, "/login", url.Values{
		"username": {" a lice "},
		"password": {"password123"},
	})

	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLoginPost_WrongPassword(t *testing.T) {
	db := setupTestDB()
	authModule := NewAuthModule(db)
	router := setupTestRouter(authModule)

	createTestUser(db, "alice", true)

	w := postForm(router, "/login", url.Values{
		"username": {"alice"},
		"password": {"nope"},
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignupPost_DuplicateUsername(t *testing.T) {
	db := setupTestDB()
	authModule := NewAuthModule(db)
	router := setupTestRouter(authModule)

	createTestUser(db, "alice", true)

	w := postForm(router, "/signup", url.Values{
		"username": {"ALICE"},
		"email":    {"other@example.com"},
		"password": {"secret"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupPost_DuplicateEmail(t *testing.T) {
	db := setupTestDB()
	authModule := NewAuthModule(db)
	router := setupTestRouter(authModule)

	createTestUser(db, "alice", true)

	w := postForm(router, "/signup", url.Values{
		"username": {"bob"},
		"email":    {"Alice@Example.com"},
		"password": {"secret"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireAuth_RedirectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", store))
	router.GET("/private", RequireAuth, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req, _ := http.NewRequest("GET", "/private", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login")
}

func TestCodeStore_IssueAndVerify(t *testing.T) {
	store := NewCodeStore(time.Minute)

	code := store.Issue("alice")
	assert.Len(t, code, 6)

	assert.False(t, store.Verify("alice", "000000"))
	assert.True(t, store.Verify("alice", code))

	// consumed on success
	assert.False(t, store.Verify("alice", code))
}

func TestCodeStore_Expiry(t *testing.T) {
	store := NewCodeStore(-time.Second)

	code := store.Issue("alice")
	assert.False(t, store.Verify("alice", code))
}

func TestCodeStore_ReissueReplaces(t *testing.T) {
	store := NewCodeStore(time.Minute)

	first := store.Issue("alice")
	second := store.Issue("alice")

	if first != second {
		assert.False(t, store.Verify("alice", first))
	}
	assert.True(t, store.Verify("alice", second))
}
