package snapshot_test

import (
	"encoding/json"
	"testing"

	"github.com/geocoder89/replayhub/internal/domain/snapshot"
)

func TestBodyMarshal(t *testing.T) {
	tests := []struct {
		name string
		in   snapshot.Body
		want string
	}{
		{name: "json_object", in: snapshot.Body(`{"name":"Alice","age":30}`), want: `{"name":"Alice","age":30}`},
		{name: "json_array", in: snapshot.Body(`[1,2,3]`), want: `[1,2,3]`},
		{name: "plain_text", in: snapshot.Body("not json"), want: `"not json"`},
		{name: "empty", in: nil, want: `null`},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBodyRoundTrip(t *testing.T) {
	for _, raw := range []string{`{"k":"v"}`, "plain text"} {
		b := snapshot.Body(raw)

		enc, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal %q: %v", raw, err)
		}

		var back snapshot.Body
		if err := json.Unmarshal(enc, &back); err != nil {
			t.Fatalf("unmarshal %q: %v", enc, err)
		}
		if string(back) != raw {
			t.Fatalf("round trip of %q yielded %q", raw, back)
		}
	}
}
