package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Matches(t *testing.T) {
	meta := map[string]string{"user_id": "alice", "file_id": "f1"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches everything", Filter{}, true},
		{"nil filter matches everything", nil, true},
		{"matching owner", Filter{"user_id": "alice"}, true},
		{"all conditions must hold", Filter{"user_id": "alice", "file_id": "f2"}, false},
		{"foreign owner", Filter{"user_id": "bob"}, false},
		{"missing key", Filter{"page": "1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(meta))
		})
	}
}
