package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeviceData is one append-only timeseries point, keyed by (device,
// key, ts). Points are immutable once written; the same polymorphic
// value encoding as DeviceAttribute applies, but there is no update in
// place.
type DeviceData struct {
	DeviceID uuid.UUID       `json:"device_id" gorm:"type:uuid;primary_key"`
	Key      string          `json:"key" gorm:"primary_key"`
	Ts       time.Time       `json:"ts" gorm:"primary_key"`
	BoolV    *bool           `json:"-" gorm:"column:bool_v"`
	StrV     *string         `json:"-" gorm:"column:str_v"`
	LongV    *int64          `json:"-" gorm:"column:long_v"`
	DoubleV  *float64        `json:"-" gorm:"column:double_v"`
	JSONV    json.RawMessage `json:"-" gorm:"column:json_v;type:JSONB"`
}

func (d *DeviceData) SetValue(v Value) {
	d.BoolV = nil
	d.StrV = nil
	d.LongV = nil
	d.DoubleV = nil
	d.JSONV = nil
	switch v.Kind() {
	case ValueBool:
		b := v.Any().(bool)
		d.BoolV = &b
	case ValueString:
		s := v.Any().(string)
		d.StrV = &s
	case ValueInt:
		i := v.Any().(int64)
		d.LongV = &i
	case ValueDouble:
		f := v.Any().(float64)
		d.DoubleV = &f
	case ValueJSON:
		d.JSONV = v.Any().(json.RawMessage)
	}
}

func (d *DeviceData) Value() Value {
	switch {
	case d.BoolV != nil:
		return BoolValue(*d.BoolV)
	case d.StrV != nil:
		return StringValue(*d.StrV)
	case d.LongV != nil:
		return IntValue(*d.LongV)
	case d.DoubleV != nil:
		return DoubleValue(*d.DoubleV)
	case d.JSONV != nil:
		return JSONValue(d.JSONV)
	default:
		return Value{}
	}
}

// DataPoint is the decoded latest-point shape returned by the store.
type DataPoint struct {
	Key   string    `json:"key"`
	Value Value     `json:"value"`
	Ts    time.Time `json:"ts"`
}

// TimeValue is one decoded point of a range query result.
type TimeValue struct {
	Ts    time.Time `json:"ts"`
	Value Value     `json:"value"`
}
