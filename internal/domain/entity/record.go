package entity

import (
	"time"
)

// Record is a versioned key/value record. The store assigns Version and
// LastModified on every successful write; callers never set them.
type Record struct {
	PartitionKey string
	RowKey       string
	Version      int64
	Attributes   map[string]any
	LastModified time.Time
}

// New creates an unversioned record ready to be passed to Store.Create.
func New(partitionKey, rowKey string, attributes map[string]any) *Record {
	if attributes == nil {
		attributes = make(map[string]any)
	}
	return &Record{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Attributes:   attributes,
	}
}

// Clone returns a deep copy of the record. Attribute values are copied by
// assignment; nested maps and slices are not expected in attribute values.
func (r *Record) Clone() *Record {
	attrs := make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	return &Record{
		PartitionKey: r.PartitionKey,
		RowKey:       r.RowKey,
		Version:      r.Version,
		Attributes:   attrs,
		LastModified: r.LastModified,
	}
}

// String returns the string attribute named key, or "" when absent.
func (r *Record) String(key string) string {
	if v, ok := r.Attributes[key].(string); ok {
		return v
	}
	return ""
}

// SetString sets a string attribute.
func (r *Record) SetString(key, value string) {
	r.Attributes[key] = value
}

// Int returns the integer attribute named key. Attributes that round-tripped
// through JSON arrive as float64 and are converted.
func (r *Record) Int(key string) int {
	switch v := r.Attributes[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// SetInt sets an integer attribute.
func (r *Record) SetInt(key string, value int) {
	r.Attributes[key] = value
}

// Int64 returns the int64 attribute named key.
func (r *Record) Int64(key string) int64 {
	switch v := r.Attributes[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// SetInt64 sets an int64 attribute.
func (r *Record) SetInt64(key string, value int64) {
	r.Attributes[key] = value
}

// Bool returns the boolean attribute named key.
func (r *Record) Bool(key string) bool {
	if v, ok := r.Attributes[key].(bool); ok {
		return v
	}
	return false
}

// SetBool sets a boolean attribute.
func (r *Record) SetBool(key string, value bool) {
	r.Attributes[key] = value
}

// Time returns the time attribute named key. Times round-trip through JSON as
// RFC 3339 strings.
func (r *Record) Time(key string) time.Time {
	switch v := r.Attributes[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SetTime sets a time attribute as an RFC 3339 string.
func (r *Record) SetTime(key string, value time.Time) {
	r.Attributes[key] = value.UTC().Format(time.RFC3339)
}
