package domain

import "time"

// Media type enumeration.
const (
	MediaMovie = "movie"
	MediaBook  = "book"
	MediaComic = "comic"
	MediaGame  = "game"
	MediaMusic = "music"
)

// MediaTypes lists the valid media types.
var MediaTypes = []string{MediaMovie, MediaBook, MediaComic, MediaGame, MediaMusic}

// MediaOrigins lists the valid origin codes.
var MediaOrigins = []string{"vn", "cn", "jp", "kr", "us", "uk", "eu", "other"}

// Statuses lists the valid publication and user statuses.
var Statuses = []string{"planning", "ongoing", "completed", "dropped"}

// GroupByFields lists the fields the analytics tool may group by.
// Restricting the dimension to this set prevents arbitrary field access.
var GroupByFields = []string{"type", "origin", "pub_status", "user_status"}

// MediaItem is one entry in a user's library.
type MediaItem struct {
	ID            string     `json:"id"`
	UserID        string     `json:"-"`
	Title         string     `json:"title"`
	Type          string     `json:"type"`
	Origin        string     `json:"origin,omitempty"`
	Author        string     `json:"author,omitempty"`
	ReleaseYear   int        `json:"release_year,omitempty"`
	Rating        *float64   `json:"rating,omitempty"`
	PubStatus     string     `json:"pub_status,omitempty"`
	UserStatus    string     `json:"user_status,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CoverImageURL string     `json:"cover_image_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// MediaPatch is a partial update to a media item. Nil fields are untouched.
type MediaPatch struct {
	Title         *string   `json:"title,omitempty"`
	Type          *string   `json:"type,omitempty"`
	Origin        *string   `json:"origin,omitempty"`
	Author        *string   `json:"author,omitempty"`
	ReleaseYear   *int      `json:"release_year,omitempty"`
	Rating        *float64  `json:"rating,omitempty"`
	PubStatus     *string   `json:"pub_status,omitempty"`
	UserStatus    *string   `json:"user_status,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CoverImageURL *string   `json:"cover_image_url,omitempty"`
}

// MediaFilter narrows a library search. Zero values mean "no constraint".
type MediaFilter struct {
	Query      string   `json:"query,omitempty"` // substring match on title
	Types      []string `json:"type,omitempty"`
	Origins    []string `json:"origin,omitempty"`
	PubStatus  []string `json:"pub_status,omitempty"`
	UserStatus []string `json:"user_status,omitempty"`
	Tags       []string `json:"tags,omitempty"` // any-overlap
	RatingMin  *float64 `json:"rating_min,omitempty"`
	RatingMax  *float64 `json:"rating_max,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// Collection groups media items under a named, colored label.
type Collection struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	ItemCount int       `json:"item_count"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultCollectionColor is applied when no color is given.
const DefaultCollectionColor = "#EF4444"
