package incident

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newIncident(status Status) *Incident {
	return &Incident{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		Title:     "Door forced",
		Type:      TypeAlarm,
		Severity:  SeverityHigh,
		Status:    status,
		Version:   3,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range Statuses {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var back Status
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}

	_, err := ParseStatus("reopened")
	assert.Error(t, err)
	_, err = Status(9).MarshalText()
	assert.Error(t, err)
}

func TestStatus_Properties(t *testing.T) {
	assert.True(t, StatusClosed.Terminal())
	assert.False(t, StatusResolved.Terminal())
	assert.True(t, StatusInProgress.Assignable())
	assert.False(t, StatusResolved.Assignable())
	assert.False(t, StatusClosed.Assignable())

	_, ok := EntryTimestamp(StatusCreated)
	assert.False(t, ok)
	f, ok := EntryTimestamp(StatusInProgress)
	assert.True(t, ok)
	assert.Equal(t, FieldEnRouteAt, f)
}

func TestMutation_ApplyNeverOverwritesTimestamps(t *testing.T) {
	inc := newIncident(StatusAccepted)
	earlier := t0.Add(-time.Hour)
	inc.AcceptedAt = &earlier

	target := StatusInProgress
	m := &Mutation{
		Expect:     Precondition{Status: StatusAccepted, Version: 3},
		Status:     &target,
		Timestamps: map[TimestampField]time.Time{FieldEnRouteAt: t0, FieldAcceptedAt: t0},
		At:         t0,
	}

	out := m.Apply(inc)
	assert.Equal(t, StatusInProgress, out.Status)
	assert.Equal(t, earlier, *out.AcceptedAt)
	assert.Equal(t, t0, *out.EnRouteAt)
	assert.Equal(t, 4, out.Version)

	// input untouched
	assert.Equal(t, StatusAccepted, inc.Status)
	assert.Nil(t, inc.EnRouteAt)
}

func TestMutation_CompensateRestoresPriorState(t *testing.T) {
	inc := newIncident(StatusCreated)
	prior := uuid.New()
	inc.AssigneeID = &prior

	next := uuid.New()
	target := StatusAccepted
	m := &Mutation{
		Expect:          Precondition{Status: StatusCreated, Version: 3},
		Status:          &target,
		AssigneeID:      &next,
		PriorAssigneeID: &prior,
		Timestamps:      map[TimestampField]time.Time{FieldAcceptedAt: t0},
		At:              t0,
	}

	applied := m.Apply(inc)
	restored := m.Compensate(applied)

	assert.Equal(t, StatusCreated, restored.Status)
	assert.Equal(t, prior, *restored.AssigneeID)
	assert.Nil(t, restored.AcceptedAt)
	assert.Equal(t, 5, restored.Version)
}

func TestMutation_CommentDoesNotTouchRow(t *testing.T) {
	inc := newIncident(StatusInProgress)
	m := &Mutation{Expect: Precondition{Status: StatusInProgress, Version: 3}, At: t0.Add(time.Minute)}

	assert.False(t, m.TouchesRow())
	out := m.Apply(inc)
	assert.Equal(t, inc.Version, out.Version)
	assert.Equal(t, inc.UpdatedAt, out.UpdatedAt)
	assert.True(t, m.Matches(inc))
}

func TestSortTimeline(t *testing.T) {
	events := []Event{
		{Seq: 3, CreatedAt: t0},
		{Seq: 1, CreatedAt: t0.Add(time.Second)},
		{Seq: 2, CreatedAt: t0},
	}
	SortTimeline(events)
	assert.Equal(t, []int64{2, 3, 1}, []int64{events[0].Seq, events[1].Seq, events[2].Seq})
}

func TestDecodePayload(t *testing.T) {
	raw, err := json.Marshal(StatusChangedPayload{From: StatusAccepted, To: StatusClosed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"accepted","to":"closed"}`, string(raw))

	p, err := DecodePayload(EventStatusChanged, raw)
	require.NoError(t, err)
	assert.Equal(t, StatusChangedPayload{From: StatusAccepted, To: StatusClosed}, p)

	_, err = DecodePayload("escalated", raw)
	assert.Error(t, err)
}

func TestEvent_UnmarshalTypedPayload(t *testing.T) {
	ev := Event{
		ID:        uuid.New(),
		Kind:      EventComment,
		Payload:   CommentPayload{Body: "gate re-armed"},
		Seq:       7,
		CreatedAt: t0,
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, CommentPayload{Body: "gate re-armed"}, got.Payload)
	assert.Equal(t, int64(7), got.Seq)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"escalated","payload":{}}`), &got))
}
