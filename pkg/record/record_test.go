package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{" Info ", LevelInfo, false},
		{"success", LevelSuccess, false},
		{"warn", LevelWarn, false},
		{"Error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"warning", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lvl, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lvl)
		})
	}
}

func TestRecord_Map_OmitsAbsentMembers(t *testing.T) {
	rec := Record{Level: LevelInfo, Message: "hello"}

	m := rec.Map()

	assert.Equal(t, Fields{"level": "info", "message": "hello"}, m)
}

func TestRecord_Map_TypedMembersWinOverExtras(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := Record{
		Level:      LevelWarn,
		Message:    "slow request",
		Timestamp:  ts,
		Method:     "GET",
		StatusCode: 504,
		Path:       "/api/orders",
		Duration:   1234.5,
		Fields: Fields{
			"message": "from extras",
			"region":  "eu-west-1",
		},
	}

	m := rec.Map()

	assert.Equal(t, "slow request", m[KeyMessage])
	assert.Equal(t, ts, m[KeyTimestamp])
	assert.Equal(t, 504, m[KeyStatusCode])
	assert.Equal(t, 1234.5, m[KeyDuration])
	assert.Equal(t, "eu-west-1", m["region"])
	assert.NotContains(t, m, KeyUserID)
}

func TestFromFields(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Lifts recognized keys", func(t *testing.T) {
		rec := FromFields(Fields{
			"level":      "error",
			"message":    "boom",
			"timestamp":  ts,
			"category":   "DATABASE",
			"statusCode": float64(500),
			"userId":     "u-1",
			"duration":   12,
			"custom":     true,
		})

		assert.Equal(t, LevelError, rec.Level)
		assert.Equal(t, "boom", rec.Message)
		assert.Equal(t, ts, rec.Timestamp)
		assert.Equal(t, "DATABASE", rec.Category)
		assert.Equal(t, 500, rec.StatusCode)
		assert.Equal(t, "u-1", rec.UserID)
		assert.Equal(t, 12.0, rec.Duration)
		assert.Equal(t, Fields{"custom": true}, rec.Fields)
	})

	t.Run("Parses RFC3339 timestamp strings", func(t *testing.T) {
		rec := FromFields(Fields{"timestamp": "2024-01-02T03:04:05Z"})
		assert.True(t, ts.Equal(rec.Timestamp))
		assert.Nil(t, rec.Fields)
	})

	t.Run("Keeps mistyped recognized keys as extras", func(t *testing.T) {
		rec := FromFields(Fields{"statusCode": "teapot", "message": 42})
		assert.Equal(t, 0, rec.StatusCode)
		assert.Equal(t, "", rec.Message)
		assert.Equal(t, Fields{"statusCode": "teapot", "message": 42}, rec.Fields)
	})

	t.Run("Keeps zero recognized values", func(t *testing.T) {
		rec := FromFields(Fields{"message": "", "statusCode": 0, "duration": 0.0, "userId": "u-1"})
		assert.Equal(t, Fields{"message": "", "statusCode": 0, "duration": 0.0}, rec.Fields)
		assert.Equal(t, Fields{"message": "", "statusCode": 0, "duration": 0.0, "userId": "u-1"}, rec.Map())
	})

	t.Run("Converts durations to milliseconds", func(t *testing.T) {
		rec := FromFields(Fields{"duration": 1500 * time.Millisecond})
		assert.Equal(t, 1500.0, rec.Duration)
	})
}

func TestFields_Clone(t *testing.T) {
	var nilFields Fields
	assert.NotNil(t, nilFields.Clone())

	orig := Fields{"a": 1}
	c := orig.Clone()
	c["a"] = 2
	assert.Equal(t, 1, orig["a"])
}
