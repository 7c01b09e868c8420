package jobs

import (
	"encoding/json"
	"fmt"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	switch t {
	case JobHealthCheck:
		_, ok := payload.(HealthCheckPayload)

		if !ok {
			_, ok2 := payload.(*HealthCheckPayload)

			if !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}

	case JobCleanupSnapshots:
		_, ok := payload.(CleanupSnapshotsPayload)

		if !ok {
			_, ok2 := payload.(*CleanupSnapshotsPayload)

			if !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}

	case JobMetricsRollup:
		_, ok := payload.(MetricsRollupPayload)

		if !ok {
			_, ok2 := payload.(*MetricsRollupPayload)

			if !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals raw payload bytes into the typed payload struct
// for the given job type.
func DecodePayload(t JobType, raw []byte) (any, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch t {
	case JobHealthCheck:
		var p HealthCheckPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobCleanupSnapshots:
		var p CleanupSnapshotsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobMetricsRollup:
		var p MetricsRollupPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	default:
		return nil, ErrInvalidJobType
	}
}
