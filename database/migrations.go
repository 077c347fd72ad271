package database

import (
	"log"
	"time"

	"gorm.io/gorm"

	"inkwell/common"
	"inkwell/models"
)

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
	)

	if err != nil {
		log.Printf("Error running migrations: %v", err)
		return err
	}

	log.Println("Migrations completed successfully")
	return nil
}

// EnsureDefaultAdmin creates the bootstrap administrator account on first
// run. Controlled by the DEFAULT_ADMIN* environment variables.
func EnsureDefaultAdmin(db *gorm.DB) error {
	if !common.EnvBool("DEFAULT_ADMIN", true) {
		return nil
	}

	username := common.Env("DEFAULT_ADMIN_USERNAME", "admin")

	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		log.Printf("Admin %q already exists", username)
		return nil
	}

	hash, err := common.HashPassword(common.Env("DEFAULT_ADMIN_PASSWORD", "admin"))
	if err != nil {
		return err
	}

	admin := models.User{
		Username:   username,
		Email:      common.Env("DEFAULT_ADMIN_EMAIL", "admin@localhost"),
		Password:   hash,
		Role:       "admin",
		Points:     common.EnvInt("DEFAULT_ADMIN_POINTS", 0),
		TimeStamp:  time.Now().Unix(),
		IsVerified: true,
	}

	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Admin %q added to database as initial admin", username)
	return nil
}
