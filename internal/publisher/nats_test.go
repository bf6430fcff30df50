package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable-importer/internal/pipeline"
)

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"committed":  "committed",
		" a b ":      "a_b",
		"x.y":        "x_y",
		"wild*card>": "wild_card_",
		"":           "_",
	}
	for in, want := range cases {
		assert.Equal(t, want, subjectToken(in), "input %q", in)
	}
}

func TestSubjectPrefix(t *testing.T) {
	assert.Equal(t, "timetable.import", subjectPrefix("timetable.import"))
	assert.Equal(t, "timetable.import", subjectPrefix(".timetable.import."))
	assert.Equal(t, "rail_nl.import", subjectPrefix("rail nl.import"))

	p := &NATSPublisher{prefix: subjectPrefix("iff")}
	assert.Equal(t, "iff.leg.failed", p.legSubject(pipeline.Failed))
	assert.Equal(t, "iff.run", p.runSubject())
}

func TestLegMessage(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	msg := legMessage(pipeline.Report{
		Worker:      2,
		ServiceID:   1234,
		TrainNumber: "2100",
		State:       pipeline.Failed,
		Elapsed:     1500 * time.Millisecond,
		Err:         errors.New("boom"),
	}, now)

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"serviceId": 1234,
		"trainNumber": "2100",
		"state": "failed",
		"worker": 2,
		"journeys": 0,
		"events": 0,
		"elapsedMs": 1500,
		"error": "boom",
		"timestamp": "2024-01-02T02:04:05Z"
	}`, string(b))
}

func TestRunMessage(t *testing.T) {
	msg := runMessage(pipeline.Summary{Legs: 4, Committed: 2, Skipped: 1, Failed: 1, Journeys: 10, Events: 80, Elapsed: time.Second}, time.Unix(0, 0))
	assert.Equal(t, 4, msg.Legs)
	assert.Equal(t, 2, msg.Committed)
	assert.Equal(t, int64(1000), msg.ElapsedMs)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
}
