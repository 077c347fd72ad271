package models

type User struct {
	ID             int    `gorm:"primary_key;autoIncrement" json:"id"`
	Username       string `gorm:"unique;not null" json:"username"`
	Email          string `gorm:"unique;not null" json:"email"`
	Password       string `gorm:"not null" json:"-"` // bcrypt hash, never exposed
	ProfilePicture string `json:"profile_picture"`
	Role           string `gorm:"default:user" json:"role"` // "user" or "admin"
	Points         int    `gorm:"default:0" json:"points"`
	TimeStamp      int64  `json:"time_stamp"`
	IsVerified     bool   `gorm:"default:false" json:"is_verified"`
}

type Post struct {
	ID                int    `gorm:"primary_key;autoIncrement" json:"id"`
	Title             string `gorm:"not null" json:"title"`
	Tags              string `gorm:"not null" json:"tags"`
	Content           string `gorm:"type:text;not null" json:"content"`
	Banner            []byte `json:"-"`
	Author            string `gorm:"not null;index" json:"author"` // denormalized username
	Views             int64  `gorm:"default:0" json:"views"`
	TimeStamp         int64  `gorm:"index" json:"time_stamp"` // epoch seconds
	LastEditTimeStamp *int64 `json:"last_edit_time_stamp,omitempty"`
	Category          string `gorm:"not null;index" json:"category"`
	URLID             string `gorm:"column:url_id;unique;not null" json:"url_id"` // immutable after creation
	Abstract          string `gorm:"type:text;not null;default:''" json:"abstract"`
}

type Comment struct {
	ID        int    `gorm:"primary_key;autoIncrement" json:"id"`
	PostID    int    `gorm:"not null;index" json:"post_id"`
	Comment   string `gorm:"type:text" json:"comment"`
	Username  string `gorm:"index" json:"username"`
	TimeStamp int64  `json:"time_stamp"`
}
