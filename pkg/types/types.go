package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Event names pushed to connected clients. These match the handlers the
// dashboard registers on its hub connection.
const (
	EventPatientUpdate     = "ReceivePatientUpdate"
	EventOpenPatientDetail = "OpenPatientDetail"
)

// Invocation targets a client may call on the hub.
const (
	TargetSyncOpenPatientDetail = "SyncOpenPatientDetail"
)

// Frame types on the hub connection.
const (
	FrameTypeEvent      = "event"
	FrameTypeInvocation = "invocation"
	FrameTypeCompletion = "completion"
)

// UnassignedID marks a User or Patient that has not been given an ID yet.
// The store replaces it with max+1 on insert.
const UnassignedID = 0

// First IDs handed out when a scope is empty.
const (
	FirstUserID      = 1
	FirstPatientID   = 1
	FirstParameterID = 0
)

// User is an application account. Salt and hash never leave the server.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordSalt string `json:"-"`
	PasswordHash string `json:"-"`
}

// Parameter is one measurement attached to a patient. Its ID is only unique
// within the owning patient's parameter list.
type Parameter struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Alarm bool   `json:"alarm"`
}

// Patient owns an ordered list of parameters; insertion order is preserved.
type Patient struct {
	ID         int         `json:"id"`
	FamilyName string      `json:"familyName"`
	GivenName  string      `json:"givenName"`
	BirthDate  Date        `json:"birthDate"`
	Sex        string      `json:"sex"`
	Parameters []Parameter `json:"parameters"`
}

// Clone returns a deep copy so the parameter slice is never shared.
func (p Patient) Clone() Patient {
	c := p
	if p.Parameters != nil {
		c.Parameters = make([]Parameter, len(p.Parameters))
		copy(c.Parameters, p.Parameters)
	} else {
		c.Parameters = []Parameter{}
	}
	return c
}

// AuthRequest carries credentials for login and registration.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserRequest is the body accepted by the user CRUD endpoints. The password
// is hashed before anything reaches the store.
type UserRequest struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Frame is the JSON envelope exchanged on the hub connection.
type Frame struct {
	Type         string            `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Event is an outbound push. Arguments are encoded as they are.
type Event struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

// NewEvent builds an event frame; a nil argument list is sent as [].
func NewEvent(target string, args ...any) Event {
	if args == nil {
		args = []any{}
	}
	return Event{Type: FrameTypeEvent, Target: target, Arguments: args}
}

// Date is a calendar date. It accepts "2006-01-02", RFC 3339 timestamps and
// zone-less timestamps such as "1949-05-25T00:00:00", and always encodes as
// "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

var dateLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// NewDate returns the date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses any of the accepted date layouts.
func ParseDate(s string) (Date, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return NewDate(y, m, d), nil
		}
		lastErr = err
	}
	return Date{}, lastErr
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return ErrInvalidBirthDate
	}
	*d = parsed
	return nil
}
