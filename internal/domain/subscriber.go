package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PushSubscription is one browser push endpoint registered by a subscriber.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// PushSubscriptions is JSONB-backed, embedded in the subscriber record.
type PushSubscriptions []PushSubscription

func (ps PushSubscriptions) Value() (driver.Value, error) {
	if ps == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ps)
}

func (ps *PushSubscriptions) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ps = nil
		return nil
	case []byte:
		return json.Unmarshal(v, ps)
	case string:
		return json.Unmarshal([]byte(v), ps)
	default:
		return fmt.Errorf("scan push subscriptions: unsupported type %T", src)
	}
}

// Subscriber receives notifications. Created on first contact, deactivated
// on unsubscribe or permanent delivery failure, reactivated on renewed
// contact. ID is the Telegram chat id.
type Subscriber struct {
	ID        int64             `db:"id"`
	Username  string            `db:"username"`
	FirstName string            `db:"first_name"`
	Active    bool              `db:"is_active"`
	Push      PushSubscriptions `db:"push_subscriptions"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`
}
