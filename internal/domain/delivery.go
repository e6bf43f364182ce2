package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChannelState records whether a record has been delivered on one channel.
type ChannelState struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// DeliveryState maps channel name to delivery flag, embedded in the owning
// record and stored as JSONB. A missing channel entry means "not sent".
type DeliveryState map[string]ChannelState

// Sent reports whether the record was delivered on the given channel.
func (d DeliveryState) Sent(channel string) bool {
	return d[channel].Sent
}

// AllSent reports whether every listed channel has been delivered.
func (d DeliveryState) AllSent(channels []string) bool {
	for _, ch := range channels {
		if !d.Sent(ch) {
			return false
		}
	}
	return true
}

func (d DeliveryState) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *DeliveryState) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = DeliveryState{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("scan delivery state: unsupported type %T", src)
	}
}
