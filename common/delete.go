package common

import (
	"log"

	"gorm.io/gorm"

	"inkwell/models"
)

// DeletePost removes a post and all of its comments. The comment cascade is
// done explicitly so it holds regardless of store-level constraint support.
func DeletePost(db *gorm.DB, postID int) error {
	if err := db.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
		return err
	}

	result := db.Delete(&models.Post{}, postID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("Post %d not found for deletion", postID)
		return nil
	}

	log.Printf("Post %d deleted", postID)
	return nil
}

// DeleteUser removes a user account by username, case-insensitively.
// Posts and comments keep their denormalized author strings.
func DeleteUser(db *gorm.DB, username string) error {
	result := db.Where("LOWER(username) = LOWER(?)", username).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("User %q not found for deletion", username)
		return nil
	}

	log.Printf("User %q deleted", username)
	return nil
}

// DeleteComment removes a single comment.
func DeleteComment(db *gorm.DB, commentID int) error {
	result := db.Delete(&models.Comment{}, commentID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("Comment %d not found for deletion", commentID)
	}
	return nil
}
