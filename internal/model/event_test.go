package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimpleEvent_GeneratesUUID(t *testing.T) {
	ts := time.Date(2015, 2, 23, 9, 0, 0, 0, time.UTC)
	a := NewSimpleEvent(ts)
	b := NewSimpleEvent(ts)

	_, err := uuid.Parse(a.ID())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, a.Equal(b))
}

func TestSimpleEvent_EqualityByID(t *testing.T) {
	a := NewSimpleEventWithID("1", time.UnixMilli(0))
	b := NewSimpleEventWithID("1", time.UnixMilli(5000))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}

func TestSimpleEvent_String(t *testing.T) {
	e := NewSimpleEventWithID("2", time.Date(2015, 2, 23, 9, 0, 5, 7*int(time.Millisecond), time.UTC))
	assert.Equal(t, "SimpleEvent{id=2, timestamp=20150223:090005007}", e.String())
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("20150223:090021000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 2, 23, 9, 0, 21, 0, time.UTC), ts)
	assert.Equal(t, "20150223:090021000", FormatTimestamp(ts))

	ts, err = ParseTimestamp("20150223:235959999")
	require.NoError(t, err)
	assert.Equal(t, 999, ts.Nanosecond()/int(time.Millisecond))
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, s := range []string{"", "20150223:0900", "20150223-090000000", "20150223:09000000x", "20151323:090000000"} {
		_, err := ParseTimestamp(s)
		assert.Error(t, err, s)
	}
}

func TestSimpleEvent_JSON(t *testing.T) {
	e := NewSimpleEventWithID("1", time.UnixMilli(1424682000000))

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","timestamp":1424682000000}`, string(data))

	var back SimpleEvent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, e.Equal(&back))
	assert.Equal(t, e.Timestamp(), back.Timestamp())
}

func TestSimpleEvent_JSONRequiresFields(t *testing.T) {
	var e SimpleEvent
	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":1}`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"id":"1"}`), &e))
}
