package jobs

import "encoding/json"

// HealthCheckPayload is intentionally tiny; the handler probes the DB and
// lets the stats publisher pick the result up on its next heartbeat.
type HealthCheckPayload struct {
	RequestedBy string `json:"requestedBy,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

// CleanupSnapshotsPayload prunes soft-deleted and aged request snapshots.
type CleanupSnapshotsPayload struct {
	OlderThanDays int `json:"olderThanDays"`
	BatchSize     int `json:"batchSize,omitempty"`
}

// MetricsRollupPayload aggregates raw metric rows into hourly buckets.
type MetricsRollupPayload struct {
	WindowHours int `json:"windowHours"`
}

func (p HealthCheckPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func (p CleanupSnapshotsPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func (p MetricsRollupPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
