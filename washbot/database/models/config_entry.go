package models

import "github.com/uptrace/bun"

// ConfigEntry is one entry of the operator-maintained key/value mapping:
// responsible-party contacts, key rooms and notification targets, e.g.
// responsible_Иванов_contact, responsible_Иванов_key_room,
// responsible_Иванов_notify_target.
type ConfigEntry struct {
	bun.BaseModel `bun:"table:config_entries,alias:ce"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}
