package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Session is the persisted per-user conversation state. The payload is an
// opaque JSON document owned by the conversation package; keeping it opaque
// here lets the state shape evolve without schema churn.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	AccountID string          `bun:"account_id,pk"`
	State     json.RawMessage `bun:"state,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}
