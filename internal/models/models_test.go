package models

import (
	"encoding/json"
	"testing"
)

func TestMarket_PrimaryOutcome(t *testing.T) {
	m := &Market{Outcomes: []Outcome{
		{ID: "no", Name: "No", Price: 0.3},
		{ID: "yes", Name: "YES", Price: 0.7},
	}}
	if got := m.PrimaryOutcome(); got == nil || got.ID != "yes" {
		t.Errorf("expected the outcome named yes, got %+v", got)
	}

	// No outcome named "yes": index 0 wins
	m = &Market{Outcomes: []Outcome{
		{ID: "a", Name: "Trump", Price: 0.5},
		{ID: "b", Name: "Harris", Price: 0.5},
	}}
	if got := m.PrimaryOutcome(); got == nil || got.ID != "a" {
		t.Errorf("expected index 0, got %+v", got)
	}

	if (&Market{}).PrimaryOutcome() != nil {
		t.Error("expected nil for empty outcomes")
	}
}

func TestCondition_UnmarshalRejectsUnknownKind(t *testing.T) {
	var c Condition
	err := json.Unmarshal([]byte(`{"type":"priceAbove","threshold":0.7}`), &c)
	if err != nil {
		t.Fatalf("valid condition rejected: %v", err)
	}

	err = json.Unmarshal([]byte(`{"type":"moonPhase","threshold":1}`), &c)
	if err == nil {
		t.Error("expected error for unknown condition type")
	}
}

func TestSchedule_Validate(t *testing.T) {
	cases := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"at ok", Schedule{Kind: ScheduleAt, AtMS: 1}, false},
		{"at missing ts", Schedule{Kind: ScheduleAt}, true},
		{"every ok", Schedule{Kind: ScheduleEvery, PeriodMS: 1000}, false},
		{"every zero period", Schedule{Kind: ScheduleEvery}, true},
		{"cron ok", Schedule{Kind: ScheduleCron, Expr: "0 9 * * *"}, false},
		{"cron empty", Schedule{Kind: ScheduleCron}, true},
		{"unknown kind", Schedule{Kind: "lunar"}, true},
	}
	for _, c := range cases {
		err := c.s.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestCronJob_EncodeDecodeRoundTrip(t *testing.T) {
	job := &CronJob{
		ID:      "abc123",
		Name:    "alert scan",
		Enabled: true,
		Schedule: Schedule{
			Kind:     ScheduleEvery,
			PeriodMS: 30_000,
		},
		Payload: Payload{Kind: PayloadAlertScan},
		State:   JobState{NextRunAtMS: 1700000000000},
	}

	data, err := EncodeCronJob(job)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeCronJob(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != job.ID || got.Schedule.PeriodMS != 30_000 || got.Payload.Kind != PayloadAlertScan {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestIndexEntry_ContentHashDeterministic(t *testing.T) {
	e := &IndexEntry{
		Venue:    VenuePolymarket,
		MarketID: "m1",
		Question: "Will it rain?",
		Status:   "open",
	}

	h1 := e.ComputeContentHash()
	h2 := e.ComputeContentHash()
	if h1 != h2 {
		t.Error("hash not deterministic")
	}

	// Hash ignores bookkeeping fields
	e.ContentHash = h1
	e.UpdatedAt = e.UpdatedAt.Add(1)
	if e.ComputeContentHash() != h1 {
		t.Error("hash should not depend on ContentHash/UpdatedAt")
	}

	// Hash changes when a hashed field drifts
	e.Description = "updated"
	if e.ComputeContentHash() == h1 {
		t.Error("hash should change when description changes")
	}
}
