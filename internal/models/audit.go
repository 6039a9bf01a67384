package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AuditAction names the operation an audit entry describes.
type AuditAction string

const (
	AuditActionCreate         AuditAction = "create"
	AuditActionUpdateStatus   AuditAction = "updateStatus"
	AuditActionAddComment     AuditAction = "addComment"
	AuditActionRecompute      AuditAction = "recompute"
	AuditActionAccessDenied   AuditAction = "accessDenied"
	AuditActionMutationFailed AuditAction = "mutationFailed"
	AuditActionUserCreate     AuditAction = "userCreate"
	AuditActionUserUpdate     AuditAction = "userUpdate"
	AuditActionUserDeactivate AuditAction = "userDeactivate"
)

// Audited entity names.
const (
	AuditEntitySubmission = "submission"
	AuditEntityUser       = "user"
)

// FieldValue distinguishes an absent field from one holding an explicit null.
type FieldValue struct {
	Present bool
	Value   interface{}
}

// Absent is the zero FieldValue.
var Absent = FieldValue{}

// Present wraps v as a present value, which may be nil.
func Present(v interface{}) FieldValue {
	return FieldValue{Present: true, Value: v}
}

// FieldChange records a single field's value before and after a mutation.
// An absent side is omitted from the JSON form; a null side is kept as null.
type FieldChange struct {
	Old FieldValue
	New FieldValue
}

// MarshalJSON implements json.Marshaler.
func (c FieldChange) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 2)
	if c.Old.Present {
		out["old"] = c.Old.Value
	}
	if c.New.Present {
		out["new"] = c.New.Value
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *FieldChange) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = FieldChange{}
	for key, target := range map[string]*FieldValue{"old": &c.Old, "new": &c.New} {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return err
		}
		*target = Present(v)
	}
	return nil
}

// AuditDiff maps a flattened field path to its change.
type AuditDiff map[string]FieldChange

// Fields returns the changed field paths in sorted order.
func (d AuditDiff) Fields() []string {
	fields := make([]string, 0, len(d))
	for k := range d {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Value marshals the diff to JSON for persistence.
func (d AuditDiff) Value() (driver.Value, error) {
	if d == nil {
		d = AuditDiff{}
	}
	data, err := json.Marshal(map[string]FieldChange(d))
	if err != nil {
		return nil, fmt.Errorf("marshal audit diff: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the diff.
func (d *AuditDiff) Scan(value interface{}) error {
	*d = AuditDiff{}
	return scanJSON(value, (*map[string]FieldChange)(d), "AuditDiff")
}

// AuditLogEntry is an immutable, append-only record of a state change or a refused attempt.
type AuditLogEntry struct {
	ID        string      `db:"id" json:"id"`
	Seq       int64       `db:"seq" json:"seq"`
	ActorID   string      `db:"actor_id" json:"actorId"`
	Timestamp time.Time   `db:"timestamp" json:"timestamp"`
	Entity    string      `db:"entity" json:"entity"`
	EntityID  string      `db:"entity_id" json:"entityId"`
	Action    AuditAction `db:"action" json:"action"`
	Diff      AuditDiff   `db:"diff" json:"diff"`
	Reason    *string     `db:"reason" json:"reason,omitempty"`
	PrevHash  string      `db:"prev_hash" json:"prevHash"`
	Hash      string      `db:"hash" json:"hash"`
	IPAddress string      `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent string      `db:"user_agent" json:"userAgent,omitempty"`
}

// AuditFilter constrains audit searches.
type AuditFilter struct {
	Entity   string
	EntityID string
	ActorID  string
	Action   AuditAction
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// AuditStats summarises audit activity over a trailing window.
type AuditStats struct {
	Since    time.Time      `json:"since"`
	Days     int            `json:"days"`
	Total    int            `json:"total"`
	ByAction map[string]int `json:"byAction"`
	ByEntity map[string]int `json:"byEntity"`
}

// AuditCount is a grouped audit row count.
type AuditCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// ChainVerification reports the integrity of an entity's audit chain.
type ChainVerification struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entityId"`
	Entries  int    `json:"entries"`
	Valid    bool   `json:"valid"`
	BrokenAt string `json:"brokenAt,omitempty"`
}
