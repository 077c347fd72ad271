package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"inkwell/admin"
	"inkwell/analytics"
	"inkwell/auth"
	"inkwell/backoffice"
	"inkwell/cache"
	"inkwell/common"
	"inkwell/database"
	"inkwell/site"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	db := common.ConnectDb()
	if db == nil {
		log.Fatal("Failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	if err := database.EnsureDefaultAdmin(db); err != nil {
		log.Fatal("Failed to create default admin:", err)
	}

	analyticsModule := analytics.NewModule(common.ConnectAnalyticsDb())

	router := gin.Default()

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable not set")
	}

	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})

	router.Use(sessions.Sessions("inkwell-session", store))
	router.Use(cache.BannerMiddleware(12 * time.Hour))

	router.SetFuncMap(map[string]interface{}{
		"now": func() time.Time {
			return time.Now()
		},
		"appName": common.AppName,
	})

	router.LoadHTMLGlob("*/views/*.html")

	router.Static("/public", "./public")

	authModule := auth.NewAuthModule(db)
	authModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(db, analyticsModule)
	siteModule.RegisterRoutes(router)

	backofficeModule := backoffice.NewBackofficeModule(db, analyticsModule)
	backofficeModule.RegisterRoutes(router)

	adminModule := admin.NewAdminModule(db)
	adminModule.RegisterRoutes(router)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting server on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
