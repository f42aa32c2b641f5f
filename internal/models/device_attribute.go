package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttributeScope partitions attribute visibility. SERVER attributes are
// platform-internal, SHARED attributes flow both ways between platform
// and device, CLIENT attributes are device-authored and read-mostly on
// the platform side.
type AttributeScope int16

const (
	ScopeServer AttributeScope = iota
	ScopeShared
	ScopeClient
)

func (s AttributeScope) String() string {
	switch s {
	case ScopeServer:
		return "SERVER"
	case ScopeShared:
		return "SHARED"
	case ScopeClient:
		return "CLIENT"
	default:
		return fmt.Sprintf("AttributeScope(%d)", int16(s))
	}
}

func ParseAttributeScope(s string) (AttributeScope, error) {
	switch strings.ToUpper(s) {
	case "SERVER":
		return ScopeServer, nil
	case "SHARED":
		return ScopeShared, nil
	case "CLIENT":
		return ScopeClient, nil
	default:
		return 0, fmt.Errorf("unknown attribute scope %q", s)
	}
}

func (s AttributeScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AttributeScope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseAttributeScope(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DeviceAttribute is one sparse attribute row, keyed by (device, key,
// scope). Exactly one of the five typed value columns is populated;
// SetValue maintains that invariant and Value decodes it back with
// fixed precedence.
type DeviceAttribute struct {
	DeviceID   uuid.UUID       `json:"device_id" gorm:"type:uuid;primary_key"`
	Key        string          `json:"key" gorm:"primary_key"`
	Scope      AttributeScope  `json:"scope" gorm:"type:smallint;primary_key"`
	LastUpdate time.Time       `json:"last_update"`
	BoolV      *bool           `json:"-" gorm:"column:bool_v"`
	StrV       *string         `json:"-" gorm:"column:str_v"`
	LongV      *int64          `json:"-" gorm:"column:long_v"`
	DoubleV    *float64        `json:"-" gorm:"column:double_v"`
	JSONV      json.RawMessage `json:"-" gorm:"column:json_v;type:JSONB"`
}

// SetValue places v into its typed column and clears the others.
func (a *DeviceAttribute) SetValue(v Value) {
	a.BoolV = nil
	a.StrV = nil
	a.LongV = nil
	a.DoubleV = nil
	a.JSONV = nil
	switch v.Kind() {
	case ValueBool:
		b := v.Any().(bool)
		a.BoolV = &b
	case ValueString:
		s := v.Any().(string)
		a.StrV = &s
	case ValueInt:
		i := v.Any().(int64)
		a.LongV = &i
	case ValueDouble:
		d := v.Any().(float64)
		a.DoubleV = &d
	case ValueJSON:
		a.JSONV = v.Any().(json.RawMessage)
	}
}

// Value decodes the populated column. Precedence is fixed: bool,
// string, integer, double, json, null.
func (a *DeviceAttribute) Value() Value {
	switch {
	case a.BoolV != nil:
		return BoolValue(*a.BoolV)
	case a.StrV != nil:
		return StringValue(*a.StrV)
	case a.LongV != nil:
		return IntValue(*a.LongV)
	case a.DoubleV != nil:
		return DoubleValue(*a.DoubleV)
	case a.JSONV != nil:
		return JSONValue(a.JSONV)
	default:
		return Value{}
	}
}

// Attribute is the decoded attribute shape returned by the store.
type Attribute struct {
	Key        string    `json:"key"`
	Value      Value     `json:"value"`
	LastUpdate time.Time `json:"last_update"`
}

// KeyWithScope is one entry of a device's full key inventory.
type KeyWithScope struct {
	Key   string         `json:"key"`
	Scope AttributeScope `json:"scope"`
}

// ScopeKeys groups a device's attribute keys by scope.
type ScopeKeys struct {
	Server []string `json:"SERVER"`
	Shared []string `json:"SHARED"`
	Client []string `json:"CLIENT"`
}

// GroupKeysByScope shapes a key inventory into per-scope listings. The
// slices are always non-nil so the JSON shape is stable.
func GroupKeysByScope(kws []KeyWithScope) ScopeKeys {
	sk := ScopeKeys{
		Server: []string{},
		Shared: []string{},
		Client: []string{},
	}
	for _, kw := range kws {
		switch kw.Scope {
		case ScopeServer:
			sk.Server = append(sk.Server, kw.Key)
		case ScopeShared:
			sk.Shared = append(sk.Shared, kw.Key)
		case ScopeClient:
			sk.Client = append(sk.Client, kw.Key)
		}
	}
	return sk
}

// SetAttribute is the write-side request body for one attribute.
type SetAttribute struct {
	Value json.RawMessage `json:"value"`
}
