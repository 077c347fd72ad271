package common

import (
	"log"

	"gorm.io/gorm"

	"inkwell/models"
)

// AddPoints credits engagement points to a user by username.
func AddPoints(db *gorm.DB, username string, points int) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		log.Printf("User %q not found for adding points", username)
		return
	}

	user.Points += points
	if err := db.Save(&user).Error; err != nil {
		log.Printf("Error adding points to %q: %v", username, err)
		return
	}
	log.Printf("%d points added to %q", points, username)
}
