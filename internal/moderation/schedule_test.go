package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)

	tests := []struct {
		input   string
		wantNow bool
		wantAt  time.Time
		wantErr bool
	}{
		{input: "now", wantNow: true},
		{input: "  NOW ", wantNow: true},
		{input: "Сейчас", wantNow: true},
		{input: "25.12.2030 10:00", wantAt: time.Date(2030, 12, 25, 10, 0, 0, 0, moscow)},
		{input: "01.01.2000 00:00", wantAt: time.Date(2000, 1, 1, 0, 0, 0, 0, moscow)},
		{input: "2030-12-25 10:00", wantErr: true},
		{input: "25.12.2030", wantErr: true},
		{input: "32.12.2030 10:00", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSchedule(tt.input, moscow)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNow, got.Now)
			if !tt.wantNow {
				assert.True(t, got.At.Equal(tt.wantAt), "got %s", got.At)
			}
		})
	}
}

func TestCallbackData(t *testing.T) {
	action, id, err := ParseCallbackData(CallbackData(ActionApprove, 17))
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, action)
	assert.EqualValues(t, 17, id)

	action, id, err = ParseCallbackData("reject:3")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, action)
	assert.EqualValues(t, 3, id)

	for _, bad := range []string{"approve", "publish:1", "approve:x", "approve_1"} {
		_, _, err := ParseCallbackData(bad)
		assert.Error(t, err, bad)
	}
}

func TestContactURL(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"@myshop":               "https://t.me/myshop",
		"myshop":                "https://t.me/myshop",
		" @myshop ":             "https://t.me/myshop",
		"https://t.me/myshop":   "https://t.me/myshop",
		"http://example.com/me": "http://example.com/me",
	}
	for in, want := range cases {
		assert.Equal(t, want, ContactURL(in), in)
	}
}
