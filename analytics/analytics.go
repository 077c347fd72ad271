// Package analytics records post visits in a separate database and exposes
// the aggregates shown on author dashboards. The whole module is optional:
// a nil *Module is safe to call and does nothing.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const visitorCookie = "inkwell_visitor_id"

// visits from the same visitor to the same post within this window count once
const throttleWindow = 30 * time.Minute

// PostEvent is one recorded visit to a post.
type PostEvent struct {
	ID        uint   `gorm:"primary_key;autoIncrement"`
	PostID    int    `gorm:"not null;index"`
	CookieID  string `gorm:"not null;index"`
	Event     string `gorm:"not null;default:'visit'"`
	IP        string `gorm:"not null"`
	Browser   *string
	Language  *string
	CreatedAt time.Time `gorm:"index"`
}

type Module struct {
	db *gorm.DB
}

// NewModule migrates the events table and returns the module, or nil when no
// analytics database is configured.
func NewModule(db *gorm.DB) *Module {
	if db == nil {
		log.Println("Analytics DB is nil, analytics will be disabled")
		return nil
	}

	if err := db.AutoMigrate(&PostEvent{}); err != nil {
		log.Printf("Error migrating post_events table: %v", err)
		return nil
	}

	log.Println("Analytics module initialized successfully")
	return &Module{db: db}
}

// TrackVisit records a visit to a post. A returning visitor only counts once
// per post per throttle window, so refreshes do not inflate the numbers.
func (m *Module) TrackVisit(c *gin.Context, postID int) {
	if m == nil || m.db == nil {
		return
	}

	cookieID := m.getOrCreateCookieID(c)

	cutoff := time.Now().Add(-throttleWindow)
	var recent PostEvent
	err := m.db.Where("cookie_id = ? AND post_id = ? AND created_at > ?",
		cookieID, postID, cutoff).First(&recent).Error
	if err == nil {
		return
	}

	event := PostEvent{
		PostID:    postID,
		CookieID:  cookieID,
		Event:     "visit",
		IP:        m.clientIP(c),
		Browser:   browserFromUserAgent(c.Request.UserAgent()),
		Language:  languageFromHeader(c.GetHeader("Accept-Language")),
		CreatedAt: time.Now(),
	}

	if err := m.db.Create(&event).Error; err != nil {
		log.Printf("Error saving analytics event: %v", err)
	}
}

func (m *Module) getOrCreateCookieID(c *gin.Context) string {
	if cookie, err := c.Cookie(visitorCookie); err == nil && cookie != "" {
		return cookie
	}

	data := time.Now().String() + c.ClientIP() + c.Request.UserAgent()
	hash := sha256.Sum256([]byte(data))
	cookieID := hex.EncodeToString(hash[:])

	c.SetCookie(visitorCookie, cookieID, 60*60*24*365*2, "/", "", false, true)

	return cookieID
}

func (m *Module) clientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		return strings.TrimSpace(ips[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func browserFromUserAgent(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr"):
		browser = "Opera"
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident"):
		browser = "Internet Explorer"
	default:
		browser = "Other"
	}

	return &browser
}

func languageFromHeader(acceptLang string) *string {
	if acceptLang == "" {
		return nil
	}

	// "en-US,en;q=0.9,pt-BR;q=0.8" -> "en-US"
	lang := strings.TrimSpace(strings.Split(acceptLang, ",")[0])
	lang = strings.Split(lang, ";")[0]
	if lang == "" {
		return nil
	}
	return &lang
}

// DayVisits is the visit count for one calendar day.
type DayVisits struct {
	Date  string
	Count int64
}

// PostVisits is the visit count for one post.
type PostVisits struct {
	PostID int
	Count  int64
}

// GetPostVisitCount returns the total recorded visits for a post.
func (m *Module) GetPostVisitCount(postID int) int64 {
	if m == nil || m.db == nil {
		return 0
	}

	var count int64
	m.db.Model(&PostEvent{}).Where("post_id = ?", postID).Count(&count)
	return count
}

// GetVisitsByDay returns daily visit counts for the given posts over the last
// N days, with zero-filled entries for days without visits. An empty postIDs
// slice means all posts.
func (m *Module) GetVisitsByDay(postIDs []int, days int) []DayVisits {
	if m == nil || m.db == nil {
		return []DayVisits{}
	}

	startDate := time.Now().AddDate(0, 0, -days)

	query := m.db.Model(&PostEvent{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", startDate)
	if len(postIDs) > 0 {
		query = query.Where("post_id IN ?", postIDs)
	}

	var results []struct {
		Date  string
		Count int64
	}
	query.Group("DATE(created_at)").Order("date ASC").Scan(&results)

	dayVisits := make([]DayVisits, days)
	for i := 0; i < days; i++ {
		date := time.Now().AddDate(0, 0, -(days - 1 - i))
		dayVisits[i] = DayVisits{Date: date.Format("2006-01-02")}
	}

	for _, result := range results {
		for i := range dayVisits {
			if dayVisits[i].Date == result.Date {
				dayVisits[i].Count = result.Count
				break
			}
		}
	}

	return dayVisits
}

// GetTopPosts returns the most visited posts over the last N days. An empty
// postIDs slice means all posts.
func (m *Module) GetTopPosts(postIDs []int, days int, limit int) []PostVisits {
	if m == nil || m.db == nil {
		return []PostVisits{}
	}

	startDate := time.Now().AddDate(0, 0, -days)

	query := m.db.Model(&PostEvent{}).
		Select("post_id as post_id, COUNT(*) as count").
		Where("created_at >= ?", startDate)
	if len(postIDs) > 0 {
		query = query.Where("post_id IN ?", postIDs)
	}

	var results []PostVisits
	query.Group("post_id").Order("count DESC").Limit(limit).Scan(&results)

	return results
}
