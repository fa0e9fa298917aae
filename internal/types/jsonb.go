package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Recipients holds the notification targets of an alert, stored as a JSONB
// column. At least one entry across both lists is required for an alert to
// be dispatchable.
type Recipients struct {
	Emails []string `json:"emails,omitempty"`
	Phones []string `json:"phones,omitempty"`
}

// IsEmpty reports whether no recipient is configured on any channel.
func (r Recipients) IsEmpty() bool {
	return len(r.Emails) == 0 && len(r.Phones) == 0
}

// ByChannel returns the recipient list for a channel.
func (r Recipients) ByChannel(c Channel) []string {
	switch c {
	case ChannelEmail:
		return r.Emails
	case ChannelSMS:
		return r.Phones
	}
	return nil
}

// Channels returns the channels that have at least one recipient configured.
func (r Recipients) Channels() []Channel {
	var out []Channel
	if len(r.Emails) > 0 {
		out = append(out, ChannelEmail)
	}
	if len(r.Phones) > 0 {
		out = append(out, ChannelSMS)
	}
	return out
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (r *Recipients) Scan(value interface{}) error {
	if value == nil {
		*r = Recipients{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("recipients: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, r)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (r Recipients) Value() (driver.Value, error) {
	return json.Marshal(r)
}
