package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	EmailStatusPending   = "Pending"
	EmailStatusSent      = "Sent"
	EmailStatusConfirmed = "Confirmed"
)

const (
	UserStatusOK      = "ok"
	UserStatusBlocked = "block"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64  `bun:"id,pk,autoincrement"`
	AccountID string `bun:"account_id,notnull,unique"`
	Username  string `bun:"username"`

	Surname     string `bun:"surname,notnull"`
	FirstName   string `bun:"first_name,notnull"`
	Patronymic  string `bun:"patronymic"`
	DateOfBirth string `bun:"date_of_birth"`
	Room        string `bun:"room"`

	Email             string `bun:"email"`
	EmailStatus       string `bun:"email_status,notnull,default:'Pending'"`
	RulesAcknowledged bool   `bun:"rules_acknowledged,notnull,default:false"`
	Status            string `bun:"status,notnull,default:''"`

	// HasLogEntry mirrors the paper sign-in log kept by floor supervisors;
	// it is surfaced in the supervisor reminder.
	HasLogEntry bool `bun:"has_log_entry,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// FullName joins the name parts, skipping an absent patronymic.
func (u *User) FullName() string {
	parts := []string{u.Surname, u.FirstName, u.Patronymic}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// Registered reports whether the user finished the whole onboarding flow.
func (u *User) Registered() bool {
	return u.EmailStatus == EmailStatusConfirmed && u.RulesAcknowledged
}
