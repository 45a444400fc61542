package catalog

import "github.com/vapvarun/fymodules"

func roleManagerSettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "default_role", Default: "student", Description: "Role given to new members",
			Schema: map[string]any{"enum": []any{"student", "coach", "mentor"}}},
		{Key: "allow_self_upgrade", Default: false, Description: "Let students request the coach role"},
	}
}

func loginSecuritySettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "max_attempts", Default: 5, Description: "Failed logins before lockout",
			Schema: map[string]any{"minimum": 1, "maximum": 50}},
		{Key: "lockout_minutes", Default: 15, Description: "Lockout duration",
			Schema: map[string]any{"minimum": 1}},
	}
}

func dashboardSettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "welcome_message", Default: "Welcome back!", Description: "Greeting shown on every dashboard"},
		{Key: "show_progress", Default: true, Description: "Show certification progress widgets"},
	}
}

// HourTrackerSettings is the typed form of the hour tracker's settings.
type HourTrackerSettings struct {
	TargetHours     int      `json:"target_hours"`
	AllowBackdating bool     `json:"allow_backdating"`
	ReminderDays    int      `json:"reminder_days"`
	Categories      []string `json:"categories"`
}

func hourTrackerSettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "target_hours", Default: 100, Description: "Coaching hours required for certification",
			Schema: map[string]any{"minimum": 1}},
		{Key: "allow_backdating", Default: true, Description: "Accept sessions logged after the fact"},
		{Key: "reminder_days", Default: 14, Description: "Days without a logged session before a reminder",
			Schema: map[string]any{"minimum": 0}},
		{Key: "categories", Default: []string{"client", "mentor", "peer"}, Description: "Session categories"},
	}
}

// HourTrackerConfig decodes resolved settings into HourTrackerSettings.
func HourTrackerConfig(s fymodules.Settings) (HourTrackerSettings, error) {
	var cfg HourTrackerSettings
	err := s.Decode(&cfg)
	return cfg, err
}

func checklistSettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "items_per_page", Default: 20, Schema: map[string]any{"minimum": 5, "maximum": 100}},
	}
}

func accessibilitySettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "font_scale", Default: 1.0, Description: "Base font multiplier",
			Schema: map[string]any{"minimum": 0.5, "maximum": 3}},
		{Key: "high_contrast", Default: false},
	}
}

func eventCalendarSettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "sync_interval", Default: "hourly", Description: "How often events are refreshed",
			Schema: map[string]any{"enum": []any{"hourly", "daily"}}},
		{Key: "categories", Default: []string{}, Description: "Event categories to show; empty shows all"},
	}
}

func lmsProgressSettings() []fymodules.Setting {
	return []fymodules.Setting{
		{Key: "completion_threshold", Default: 80, Description: "Percent of lessons counted as complete",
			Schema: map[string]any{"minimum": 0, "maximum": 100}},
	}
}
