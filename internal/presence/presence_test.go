package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"  ON\n", true, false},
		{"1", true, false},
		{"occupied", true, false},
		{`"present"`, true, false},
		{"false", false, false},
		{"0", false, false},
		{"empty", false, false},
		{"away", false, false},
		{`{"present": true}`, true, false},
		{`{"occupied": false}`, false, false},
		{`{"state": "occupied"}`, true, false},
		{`{"state": "off"}`, false, false},
		{"", false, true},
		{"maybe", false, true},
		{`{"lux": 30}`, false, true},
		{`{"present":`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := ParsePayload([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).Present(context.Background()))
	assert.False(t, Static(false).Present(context.Background()))
}

func TestSwitch_Expiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	s := NewSwitch(false, time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	assert.False(t, s.Present(ctx))

	s.Set(true)
	assert.True(t, s.Present(ctx))

	now = now.Add(59 * time.Second)
	assert.True(t, s.Present(ctx))

	now = now.Add(2 * time.Second)
	assert.False(t, s.Present(ctx), "reading expires without updates")

	s.Set(true)
	assert.True(t, s.Present(ctx))
}

func TestSwitch_NoExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	s := NewSwitch(true, 0)
	s.now = func() time.Time { return now }

	now = now.Add(48 * time.Hour)
	assert.True(t, s.Present(context.Background()))
}
