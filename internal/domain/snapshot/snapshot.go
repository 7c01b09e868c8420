package snapshot

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("snapshot not found")

// Body holds raw captured bytes. It serializes as structured JSON when
// the bytes already are valid JSON and as a plain string otherwise, so
// clients never see base64.
type Body []byte

func (b Body) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	if json.Valid(b) {
		return b, nil
	}
	return json.Marshal(string(b))
}

func (b *Body) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}

	// a JSON string is an escaped non-JSON payload; anything else is
	// kept verbatim
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Body(s)
		return nil
	}

	*b = append((*b)[:0], data...)
	return nil
}

type GeoSource string

const (
	GeoSourcePlatform GeoSource = "platform"
	GeoSourceHeader   GeoSource = "header"
	GeoSourceIP       GeoSource = "ip"
	GeoSourceNone     GeoSource = "none"
)

type Geo struct {
	Country string    `json:"country,omitempty"`
	Region  string    `json:"region,omitempty"`
	City    string    `json:"city,omitempty"`
	Lat     float64   `json:"lat,omitempty"`
	Lon     float64   `json:"lon,omitempty"`
	Source  GeoSource `json:"source"`
}

// Snapshot is the persisted record of one request+response pair.
// Written exactly once per captured request; immutable afterwards except
// for soft delete.
type Snapshot struct {
	ID     int64             `json:"id"`
	Method string            `json:"method"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query,omitempty"`

	// Headers with the sensitive deny-list already redacted.
	Headers map[string]string `json:"headers,omitempty"`

	Body          Body `json:"body,omitempty"`
	BodyTruncated bool `json:"bodyTruncated,omitempty"`

	UserID    *string   `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Stage     string    `json:"stage,omitempty"`

	StatusCode        int               `json:"statusCode"`
	ResponseHeaders   map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody      Body              `json:"responseBody,omitempty"`
	ResponseTruncated bool              `json:"responseTruncated,omitempty"`
	DurationMs        int64             `json:"duration"`

	Geo Geo `json:"geo"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// ListFilter narrows the snapshot listing. Nil pointer means "any".
type ListFilter struct {
	Method     *string
	Path       *string
	StatusCode *int
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	PageSize   int
}
