package recommend

import "time"

// Record is a stored recommendation. IsLiked and IsHidden are independent;
// InteractedAt is only set by a like/hide action.
type Record struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string     `gorm:"type:varchar(191);not null;index:idx_rec_user_id,priority:1" json:"-"`
	TrackID      string     `gorm:"type:varchar(64);not null;default:''" json:"track_id"`
	TrackName    string     `gorm:"type:text;not null" json:"track_name"`
	ArtistName   string     `gorm:"type:text;not null" json:"artist_name"`
	Reason       string     `gorm:"type:text;not null" json:"reason"`
	Mood         *string    `gorm:"type:text" json:"mood,omitempty"`
	Context      *string    `gorm:"type:text" json:"context,omitempty"`
	IsLiked      bool       `gorm:"not null;default:false" json:"is_liked"`
	IsHidden     bool       `gorm:"not null;default:false" json:"is_hidden"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;<-:create" json:"created_at"`
	InteractedAt *time.Time `json:"interacted_at,omitempty"`
}

func (Record) TableName() string { return "recommendations" }

// NewRecord maps a parsed candidate to an unsaved record for userID.
func NewRecord(userID string, c Candidate, trackID string) *Record {
	return &Record{
		UserID:     userID,
		TrackID:    trackID,
		TrackName:  c.Track.Name,
		ArtistName: c.Track.Artist,
		Reason:     c.Reason,
		Mood:       c.Mood,
		Context:    c.Context,
	}
}
