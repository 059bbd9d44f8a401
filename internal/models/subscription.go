package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Subscription is the record owned by a single webhook URL.
type Subscription struct {
	UserKey    string     `db:"user_key" json:"userKey"`
	WebhookURL string     `db:"webhook_url" json:"webhookUrl"`
	ChannelIDs ChannelSet `db:"channel_ids" json:"channelIds"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	Timestamp  time.Time  `db:"updated_at" json:"timestamp"`
}

// ChannelSet is an insertion-ordered list of channel IDs without duplicates.
type ChannelSet []string

// NewChannelSet drops duplicates from ids while keeping their first-seen order.
func NewChannelSet(ids []string) ChannelSet {
	set := make(ChannelSet, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		set = append(set, id)
	}
	return set
}

func (s ChannelSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Union appends the ids not yet present in s.
func (s ChannelSet) Union(ids []string) ChannelSet {
	out := make(ChannelSet, 0, len(s)+len(ids))
	out = append(out, s...)
	for _, id := range ids {
		if !out.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// Without returns s minus every id in ids.
func (s ChannelSet) Without(ids []string) ChannelSet {
	drop := ChannelSet(ids)
	out := make(ChannelSet, 0, len(s))
	for _, id := range s {
		if !drop.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// Value stores the set as a JSON array so SQL backends need a single column.
func (s ChannelSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ChannelSet) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*s = ChannelSet{}
		return nil
	default:
		return fmt.Errorf("unsupported channel_ids type %T", src)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("failed to decode channel_ids: %w", err)
	}
	*s = NewChannelSet(ids)
	return nil
}
