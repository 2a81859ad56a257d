package mysql

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"gateway-service/internal/gateway"
)

// ChannelRecord is the persisted form of an administratively defined
// channel.
type ChannelRecord struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"uniqueIndex;size:64"`
	Description       string `gorm:"size:255"`
	Category          string `gorm:"size:64"`
	Permissions       string `gorm:"size:255"` // comma-separated role list
	MessagesPerMinute int
	MessagesPerHour   int
	MaxSubscribers    int
	RetentionDays     int
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ChannelRecord) TableName() string { return "channels" }

// ToChannel converts the record into the registry's channel definition.
func (r *ChannelRecord) ToChannel() *gateway.Channel {
	var perms []string
	for _, p := range strings.Split(r.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return &gateway.Channel{
		Name:              r.Name,
		Description:       r.Description,
		Category:          r.Category,
		Permissions:       perms,
		MessagesPerMinute: r.MessagesPerMinute,
		MessagesPerHour:   r.MessagesPerHour,
		MaxSubscribers:    r.MaxSubscribers,
		RetentionDays:     r.RetentionDays,
		Active:            r.Active,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type ChannelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db}
}

// Migrate creates the channels table if missing.
func (r *ChannelRepository) Migrate() error {
	return r.db.AutoMigrate(&ChannelRecord{})
}

func (r *ChannelRepository) Create(record *ChannelRecord) error {
	return r.db.Create(record).Error
}

func (r *ChannelRepository) Update(record *ChannelRecord) error {
	return r.db.Save(record).Error
}

// ListActive returns the administratively defined channels to merge into the
// registry at gateway start.
func (r *ChannelRepository) ListActive() ([]ChannelRecord, error) {
	var records []ChannelRecord
	err := r.db.Where("active = ?", true).Find(&records).Error
	return records, err
}
