package crawler

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Record field names as they appear on the wire.
const (
	FieldIndex       = "index"
	FieldURL         = "url"
	FieldStatusCode  = "statusCode"
	FieldContentSize = "contentSize"
	FieldContentType = "contentType"
	FieldTimestamp   = "timestamp"
	FieldReferrer    = "referrer"
	FieldTitle       = "title"
	FieldLoadTime    = "loadTime"
)

var canonicalFields = []string{
	FieldURL,
	FieldStatusCode,
	FieldContentSize,
	FieldContentType,
	FieldTimestamp,
	FieldReferrer,
	FieldTitle,
	FieldLoadTime,
}

// IsNumericField reports whether a field compares numerically.
func IsNumericField(name string) bool {
	switch name {
	case FieldIndex, FieldStatusCode, FieldContentSize, FieldTimestamp, FieldLoadTime:
		return true
	default:
		return false
	}
}

// IsKnownField reports whether name is a record field (including index).
func IsKnownField(name string) bool {
	return name == FieldIndex || slices.Contains(canonicalFields, name)
}

// CrawlResult is one page outcome reported by the engine. Records are treated
// as immutable once received; Index is assigned by ingestion.
type CrawlResult struct {
	Index       int
	URL         string
	StatusCode  *int
	ContentSize int64
	ContentType *string
	Timestamp   *int64
	Referrer    *string
	Title       *string
	LoadTime    *int64

	// keys holds the wire key order of a decoded record, index excluded.
	keys []string
}

// Keys returns the record's field names in order, without index. Decoded
// records keep their wire order; records built in code use the canonical
// order and omit unset optional fields.
func (r CrawlResult) Keys() []string {
	if len(r.keys) > 0 {
		return slices.Clone(r.keys)
	}
	keys := make([]string, 0, len(canonicalFields))
	for _, name := range canonicalFields {
		if _, ok := r.Field(name); ok {
			keys = append(keys, name)
		}
	}
	return keys
}

// WithIndex returns a copy carrying the given ingestion index.
func (r CrawlResult) WithIndex(index int) CrawlResult {
	r.Index = index
	return r
}

// Field returns the value of a named field as int64 or string. The bool is
// false when the field is unset (nil) or unknown.
func (r CrawlResult) Field(name string) (any, bool) {
	switch name {
	case FieldIndex:
		return int64(r.Index), true
	case FieldURL:
		return r.URL, true
	case FieldStatusCode:
		if r.StatusCode == nil {
			return nil, false
		}
		return int64(*r.StatusCode), true
	case FieldContentSize:
		return r.ContentSize, true
	case FieldContentType:
		return derefString(r.ContentType)
	case FieldTimestamp:
		return derefInt64(r.Timestamp)
	case FieldReferrer:
		return derefString(r.Referrer)
	case FieldTitle:
		return derefString(r.Title)
	case FieldLoadTime:
		return derefInt64(r.LoadTime)
	default:
		return nil, false
	}
}

// Number returns a numeric field, treating missing values as 0.
func (r CrawlResult) Number(name string) int64 {
	v, ok := r.Field(name)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}

// Text renders a field as text; missing values render as "".
func (r CrawlResult) Text(name string) string {
	v, ok := r.Field(name)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Code returns the status code, 0 when the engine reported none.
func (r CrawlResult) Code() int {
	if r.StatusCode == nil {
		return 0
	}
	return *r.StatusCode
}

// RefererURL returns the referrer or "".
func (r CrawlResult) RefererURL() string {
	if r.Referrer == nil {
		return ""
	}
	return *r.Referrer
}

// MarshalJSON writes the record's keys in order, followed by index when set.
func (r CrawlResult) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	var err error
	for _, key := range r.Keys() {
		value, _ := r.Field(key)
		if out, err = sjson.SetBytes(out, key, value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
	}
	if r.Index > 0 {
		if out, err = sjson.SetBytes(out, FieldIndex, r.Index); err != nil {
			return nil, fmt.Errorf("encode %s: %w", FieldIndex, err)
		}
	}
	return out, nil
}

// UnmarshalJSON decodes a record and remembers its key order.
func (r *CrawlResult) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("crawl result: invalid JSON")
	}
	decoded, err := ResultFromJSON(gjson.ParseBytes(data))
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// ResultFromJSON builds a record from a parsed JSON object. Unknown keys and
// any incoming index are ignored.
func ResultFromJSON(obj gjson.Result) (CrawlResult, error) {
	if !obj.IsObject() {
		return CrawlResult{}, fmt.Errorf("crawl result: expected object, got %s", obj.Type)
	}
	var out CrawlResult
	obj.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == FieldIndex || !IsKnownField(name) || slices.Contains(out.keys, name) {
			return true
		}
		out.keys = append(out.keys, name)
		switch name {
		case FieldURL:
			out.URL = value.String()
		case FieldStatusCode:
			if value.Type != gjson.Null {
				code := int(value.Int())
				out.StatusCode = &code
			}
		case FieldContentSize:
			out.ContentSize = value.Int()
		case FieldContentType:
			out.ContentType = optString(value)
		case FieldTimestamp:
			out.Timestamp = optInt64(value)
		case FieldReferrer:
			out.Referrer = optString(value)
		case FieldTitle:
			out.Title = optString(value)
		case FieldLoadTime:
			out.LoadTime = optInt64(value)
		}
		return true
	})
	return out, nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }

func optString(value gjson.Result) *string {
	if value.Type == gjson.Null {
		return nil
	}
	s := value.String()
	return &s
}

func optInt64(value gjson.Result) *int64 {
	if value.Type == gjson.Null {
		return nil
	}
	n := value.Int()
	return &n
}

func derefString(p *string) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

func derefInt64(p *int64) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}
