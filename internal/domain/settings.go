package domain

// NotificationSettings is the per-user reminder configuration.
type NotificationSettings struct {
	Enabled          *bool `json:"enabled" dynamodbav:"enabled"`
	ReminderAdvance  *int  `json:"reminder_advance" dynamodbav:"reminder_advance"` // minutes before a dose; 0 disables upcoming notices
	MissedDoseAlerts *bool `json:"missed_dose_alerts" dynamodbav:"missed_dose_alerts"`
}

// MedicineDefaults holds per-user defaults applied to new medicines.
type MedicineDefaults struct {
	ReminderTimes []string `json:"default_reminder_times" dynamodbav:"default_reminder_times"` // "HH:MM", ordered; length defines the daily slot count
}

// Settings is the loosely-populated settings record stored on the user.
// Pointer fields distinguish "never set" from explicit zero values; callers
// must go through Normalized before reading.
type Settings struct {
	Notifications NotificationSettings `json:"notifications" dynamodbav:"notifications"`
	Medicines     MedicineDefaults     `json:"medicine_defaults" dynamodbav:"medicine_defaults"`
}

// ResolvedSettings is a Settings record with every default applied.
type ResolvedSettings struct {
	NotificationsEnabled bool
	ReminderAdvance      int // minutes
	MissedDoseAlerts     bool
	ReminderTimes        []string
}

const defaultReminderAdvance = 30

var defaultReminderTimes = []string{"08:00", "14:00", "20:00"}

// DefaultSettings returns the configuration used when a user has never saved settings.
func DefaultSettings() ResolvedSettings {
	return ResolvedSettings{
		NotificationsEnabled: true,
		ReminderAdvance:      defaultReminderAdvance,
		MissedDoseAlerts:     true,
		ReminderTimes:        append([]string(nil), defaultReminderTimes...),
	}
}

// Normalized applies defaults to every unset field. Settings payloads come
// from the persistence layer in whatever shape the client last wrote, so all
// defaulting happens here at the boundary, never at individual use sites.
func (s *Settings) Normalized() ResolvedSettings {
	r := DefaultSettings()
	if s == nil {
		return r
	}
	if s.Notifications.Enabled != nil {
		r.NotificationsEnabled = *s.Notifications.Enabled
	}
	if s.Notifications.ReminderAdvance != nil && *s.Notifications.ReminderAdvance >= 0 {
		r.ReminderAdvance = *s.Notifications.ReminderAdvance
	}
	if s.Notifications.MissedDoseAlerts != nil {
		r.MissedDoseAlerts = *s.Notifications.MissedDoseAlerts
	}
	if len(s.Medicines.ReminderTimes) > 0 {
		r.ReminderTimes = append([]string(nil), s.Medicines.ReminderTimes...)
	}
	return r
}
