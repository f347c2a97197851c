package model

import (
	"time"

	"github.com/google/uuid"
)

type ChannelFrequency string

const (
	FrequencyImmediate   ChannelFrequency = "immediate"
	FrequencyDailyDigest ChannelFrequency = "daily_digest"
	FrequencyWeekly      ChannelFrequency = "weekly_digest"
	FrequencyDisabled    ChannelFrequency = "disabled"
)

func (f ChannelFrequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDailyDigest, FrequencyWeekly, FrequencyDisabled:
		return true
	}
	return false
}

type ChannelConfig struct {
	Enabled   bool             `json:"enabled"`
	Frequency ChannelFrequency `json:"frequency" validate:"required,oneof=immediate daily_digest weekly_digest disabled"`
}

type InAppConfig struct {
	Enabled   bool `json:"enabled"`
	ShowBadge bool `json:"show_badge"`
}

// DoNotDisturbConfig holds local clock times. The window may wrap past
// midnight: 22:00-08:00 means "time >= 22:00 or time < 08:00".
type DoNotDisturbConfig struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time" validate:"omitempty,len=5"`
	EndTime   string `json:"end_time" validate:"omitempty,len=5"`
}

// NotificationPreference is the whole preference document for one user.
// Updates replace the document atomically; there is no partial merge.
type NotificationPreference struct {
	UserID       uuid.UUID                     `json:"user_id"`
	Email        ChannelConfig                 `json:"email"`
	SMS          ChannelConfig                 `json:"sms"`
	Push         ChannelConfig                 `json:"push"`
	InApp        InAppConfig                   `json:"in_app"`
	Categories   map[NotificationCategory]bool `json:"categories"`
	DoNotDisturb DoNotDisturbConfig            `json:"do_not_disturb"`
	Timezone     string                        `json:"timezone"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

// DefaultPreferences synthesizes the system defaults for a user that never
// saved a document. Nothing is persisted until the user saves explicitly.
func DefaultPreferences(userID uuid.UUID) *NotificationPreference {
	categories := make(map[NotificationCategory]bool, len(AllCategories))
	for _, c := range AllCategories {
		categories[c] = true
	}
	return &NotificationPreference{
		UserID: userID,
		Email:  ChannelConfig{Enabled: true, Frequency: FrequencyImmediate},
		SMS:    ChannelConfig{Enabled: false, Frequency: FrequencyDisabled},
		Push:   ChannelConfig{Enabled: true, Frequency: FrequencyImmediate},
		InApp:  InAppConfig{Enabled: true, ShowBadge: true},
		Categories: categories,
		DoNotDisturb: DoNotDisturbConfig{
			Enabled:   false,
			StartTime: "22:00",
			EndTime:   "08:00",
		},
		Timezone: "UTC",
	}
}

// CategoryEnabled defaults to true for categories absent from the document.
func (p *NotificationPreference) CategoryEnabled(c NotificationCategory) bool {
	if p.Categories == nil {
		return true
	}
	enabled, ok := p.Categories[c]
	if !ok {
		return true
	}
	return enabled
}
