package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageStatus(t *testing.T) {
	require.Equal(t, StatusSent, Message{}.Status())
	require.Equal(t, StatusDelivered, Message{Delivered: true}.Status())
	require.Equal(t, StatusSeen, Message{Delivered: true, Seen: true}.Status())
	require.Equal(t, StatusSeen, Message{Seen: true}.Status())
	require.Equal(t, "Delivered", StatusDelivered.String())
}

func TestMessageFromFieldsAcceptsDecodedNumbers(t *testing.T) {
	cases := map[string]any{
		"int64":       int64(1700000000000),
		"float64":     float64(1700000000000),
		"json.Number": json.Number("1700000000000"),
	}
	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			msg, err := MessageFromFields("m1", map[string]any{
				FieldSenderID:   "alice",
				FieldReceiverID: "bob",
				FieldMessage:    "abc",
				FieldTimestamp:  ts,
				FieldSeen:       true,
			})
			require.NoError(t, err)
			require.Equal(t, int64(1700000000000), msg.Timestamp)
			require.Equal(t, "m1", msg.ID)
			require.True(t, msg.Seen)
			require.False(t, msg.Delivered)
		})
	}
}

func TestMessageFromFieldsMissingTimestamp(t *testing.T) {
	_, err := MessageFromFields("m1", map[string]any{FieldSenderID: "alice"})
	require.Error(t, err)
}

func TestMessageValidate(t *testing.T) {
	valid := Message{SenderID: "alice", ReceiverID: "bob", Ciphertext: "x", Timestamp: 1}
	require.NoError(t, valid.Validate())

	err := Message{SenderID: "alice"}.Validate()
	require.Error(t, err)
	var list *ValidationErrors
	require.ErrorAs(t, err, &list)
	require.Len(t, list.Errors, 3)
}

func TestMessageFieldsRoundTrip(t *testing.T) {
	msg := Message{SenderID: "alice", ReceiverID: "bob", Ciphertext: "x", Timestamp: 42, Delivered: true}
	decoded, err := MessageFromFields("id", msg.Fields())
	require.NoError(t, err)
	msg.ID = "id"
	require.Equal(t, msg, decoded)
}

func TestBuildViewDateHeaders(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "a", Timestamp: day1.UnixMilli()},
		{ID: "b", Timestamp: day1.Add(time.Hour).UnixMilli()},
		{ID: "c", Timestamp: day2.UnixMilli()},
	}

	view := BuildView("x-y", msgs, time.UTC)

	require.Equal(t, []string{"Mar 1, 2024", "Mar 2, 2024"}, view.Headers())
	require.Len(t, view.Items, 5)
	require.Equal(t, DateHeader{Label: "Mar 1, 2024"}, view.Items[0])
	require.Equal(t, "a", view.Items[1].(MessageItem).Message.ID)
	require.Equal(t, DateHeader{Label: "Mar 2, 2024"}, view.Items[3])
	require.Equal(t, "c", view.Items[4].(MessageItem).Message.ID)
}

func TestBuildViewUsesLocation(t *testing.T) {
	// 23:30 UTC on Mar 1 is already Mar 2 in UTC+2.
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC).UnixMilli()
	loc := time.FixedZone("UTC+2", 2*60*60)

	view := BuildView("x-y", []Message{{ID: "a", Timestamp: ts}}, loc)
	require.Equal(t, []string{"Mar 2, 2024"}, view.Headers())
}

func TestBuildViewEmpty(t *testing.T) {
	view := BuildView("x-y", nil, time.UTC)
	require.Empty(t, view.Items)
	require.Empty(t, view.Messages())
}

func TestProfileDisplayName(t *testing.T) {
	require.Equal(t, "Alice", Profile{ID: "u1", Username: " Alice "}.DisplayName())
	require.Equal(t, "u1", Profile{ID: "u1"}.DisplayName())
	require.Error(t, Profile{ID: "u1"}.Validate())
}
