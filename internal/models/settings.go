package models

import "fmt"

// AppSettings are device-wide display preferences.
type AppSettings struct {
	Currency             string `json:"currency"`
	Theme                string `json:"theme"`
	Language             string `json:"language"`
	DateFormat           string `json:"dateFormat"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	CompactView          bool   `json:"compactView"`
}

// DefaultAppSettings returns the settings used when none are stored.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Currency:             "USD",
		Theme:                "system",
		Language:             "en",
		DateFormat:           "MM/DD/YYYY",
		NotificationsEnabled: true,
	}
}

// Validate checks the stored shape of app settings.
func (s *AppSettings) Validate() error {
	switch s.Theme {
	case "light", "dark", "system":
	default:
		return fmt.Errorf("app settings: unknown theme %q", s.Theme)
	}
	if len(s.Currency) != 3 {
		return fmt.Errorf("app settings: currency must be a 3-letter code, got %q", s.Currency)
	}
	return nil
}

// AccountSettings are account-level preferences.
type AccountSettings struct {
	TwoFactorEnabled      bool `json:"twoFactorEnabled"`
	EmailNotifications    bool `json:"emailNotifications"`
	PushNotifications     bool `json:"pushNotifications"`
	MarketingEmails       bool `json:"marketingEmails"`
	SessionTimeoutMinutes int  `json:"sessionTimeoutMinutes"`
}

// DefaultAccountSettings returns the settings used when none are stored.
func DefaultAccountSettings() AccountSettings {
	return AccountSettings{
		EmailNotifications:    true,
		PushNotifications:     true,
		SessionTimeoutMinutes: 30,
	}
}

// Validate checks the stored shape of account settings.
func (s *AccountSettings) Validate() error {
	if s.SessionTimeoutMinutes <= 0 {
		return fmt.Errorf("account settings: session timeout must be positive, got %d", s.SessionTimeoutMinutes)
	}
	return nil
}
