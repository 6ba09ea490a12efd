// internal/config/notifications.go - Notification sink configuration
package config

import (
	"fmt"
)

type NotificationConfig struct {
	Title             string         `yaml:"title"`    // text/template
	Template          string         `yaml:"template"` // text/template
	MentionName       string         `yaml:"mention_name"`
	MentionUserIDs    []string       `yaml:"mention_user_ids"`
	AttachScreenshots *bool          `yaml:"attach_screenshots"`
	AttachLogs        *bool          `yaml:"attach_logs"`
	Telegram          TelegramConfig `yaml:"telegram"`
	Pushover          PushoverConfig `yaml:"pushover"`
	Email             EmailConfig    `yaml:"email"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

type PushoverConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIToken string `yaml:"api_token"`
	UserKey  string `yaml:"user_key"`
	Priority int    `yaml:"priority"` // -2 (silent) .. 1 (high); emergency is not used for camera alerts
	Sound    string `yaml:"sound"`
	Device   string `yaml:"device"`
	APIURL   string `yaml:"api_url"`
}

type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Configured reports whether the sink has the credentials it needs.
func (t TelegramConfig) Configured() bool {
	return t.Enabled && t.BotToken != "" && t.ChatID != ""
}

func (p PushoverConfig) Configured() bool {
	return p.Enabled && p.APIToken != "" && p.UserKey != ""
}

func (e EmailConfig) Configured() bool {
	return e.Enabled && e.Host != "" && e.From != "" && len(e.To) > 0
}

func (n NotificationConfig) AttachScreenshotsEnabled() bool {
	return n.AttachScreenshots == nil || *n.AttachScreenshots
}

func (n NotificationConfig) AttachLogsEnabled() bool {
	return n.AttachLogs == nil || *n.AttachLogs
}

func mergeNotificationConfig(main *NotificationConfig, partial *NotificationConfig) {
	if partial.Title != "" {
		main.Title = partial.Title
	}
	if partial.Template != "" {
		main.Template = partial.Template
	}
	if partial.MentionName != "" {
		main.MentionName = partial.MentionName
	}
	if len(partial.MentionUserIDs) > 0 {
		main.MentionUserIDs = partial.MentionUserIDs
	}
	if partial.AttachScreenshots != nil {
		main.AttachScreenshots = partial.AttachScreenshots
	}
	if partial.AttachLogs != nil {
		main.AttachLogs = partial.AttachLogs
	}
	if partial.Telegram.BotToken != "" || partial.Telegram.Enabled {
		main.Telegram = partial.Telegram
	}
	if partial.Pushover.APIToken != "" || partial.Pushover.Enabled {
		main.Pushover = partial.Pushover
	}
	if partial.Email.Host != "" || partial.Email.Enabled {
		main.Email = partial.Email
	}
}

func setNotificationDefaults(n *NotificationConfig) {
	if n.Telegram.APIURL == "" {
		n.Telegram.APIURL = "https://api.telegram.org"
	}
	if n.Pushover.APIURL == "" {
		n.Pushover.APIURL = "https://api.pushover.net/1/messages.json"
	}
	if n.Pushover.Sound == "" {
		n.Pushover.Sound = "pushover"
	}
	if n.Email.Port == 0 {
		n.Email.Port = 587
	}
}

func validateNotifications(n *NotificationConfig) error {
	if n.Pushover.Enabled {
		if n.Pushover.APIToken == "" {
			return fmt.Errorf("notifications.pushover.api_token is required when Pushover is enabled")
		}
		if n.Pushover.UserKey == "" {
			return fmt.Errorf("notifications.pushover.user_key is required when Pushover is enabled")
		}
		if n.Pushover.Priority < -2 || n.Pushover.Priority > 1 {
			return fmt.Errorf("notifications.pushover.priority must be between -2 and 1")
		}
	}
	if n.Email.Enabled {
		if n.Email.Host == "" || n.Email.From == "" {
			return fmt.Errorf("notifications.email.host and notifications.email.from are required when email is enabled")
		}
		if len(n.Email.To) == 0 {
			return fmt.Errorf("notifications.email.to needs at least one recipient")
		}
	}
	// Telegram without credentials is allowed; the sink is simply not built.
	return nil
}
