package history

import (
	"reflect"
	"testing"
	"time"

	"camwatch/internal/database"
)

func TestSummarizeTotalsAndRecent(t *testing.T) {
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	records := []database.CheckRecord{
		{HostID: "a", HostName: "A", Status: database.StatusOK, Timestamp: base},
		{HostID: "a", HostName: "A", Status: database.StatusFailure, FailingCameraIDs: []string{"2", "5"}, Timestamp: base.Add(time.Minute)},
		{HostID: "a", HostName: "A", Status: database.StatusFailure, FailingCameraIDs: []string{"5"}, Timestamp: base.Add(2 * time.Minute)},
		{HostID: "a", HostName: "A", Status: database.StatusError, Timestamp: base.Add(3 * time.Minute)},
		{HostID: "gone", HostName: "Old", Status: database.StatusOK, Timestamp: base},
	}
	hosts := []database.Host{{ID: "a", Name: "A"}, {ID: "idle", Name: "Idle"}}

	s := Summarize(records, hosts, 2, time.UTC, base.Add(time.Hour))

	if len(s.Hosts) != 3 {
		t.Fatalf("expected 3 host summaries, got %d", len(s.Hosts))
	}
	a := s.Hosts[0]
	if a.TotalChecks != 4 || a.Failures != 2 || a.Errors != 1 {
		t.Fatalf("unexpected totals %+v", a)
	}
	if a.CameraCounts["5"] != 2 || a.CameraCounts["2"] != 1 {
		t.Fatalf("unexpected camera counts %v", a.CameraCounts)
	}
	if len(a.Recent) != 2 || a.Recent[0].Status != database.StatusError {
		t.Fatalf("recent should hold newest 2 records, got %+v", a.Recent)
	}
	if a.LastStatus != database.StatusError {
		t.Errorf("last status = %q", a.LastStatus)
	}

	if idle := s.Hosts[1]; idle.TotalChecks != 0 || idle.Recent == nil {
		t.Errorf("idle host should have empty history, got %+v", idle)
	}
	if s.Hosts[2].HostName != "Old" {
		t.Errorf("unconfigured host should keep recorded name, got %q", s.Hosts[2].HostName)
	}
}

func TestAggregateByDayInTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 01:30 UTC on the 11th is still the 10th in Sao Paulo (UTC-3)
	records := []database.CheckRecord{
		{HostID: "a", Status: database.StatusFailure, FailingCameraIDs: []string{"3", "10"}, Timestamp: time.Date(2024, 5, 11, 1, 30, 0, 0, time.UTC)},
		{HostID: "a", Status: database.StatusFailure, FailingCameraIDs: []string{"10"}, Timestamp: time.Date(2024, 5, 11, 15, 0, 0, 0, time.UTC)},
		{HostID: "a", Status: database.StatusOK, Timestamp: time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)},
	}

	h := Aggregate("a", records, loc)

	want := []DayCount{
		{Date: "2024-05-10", Checks: 2, Failures: 1},
		{Date: "2024-05-11", Checks: 1, Failures: 1},
	}
	if !reflect.DeepEqual(h.ByDay, want) {
		t.Fatalf("by_day = %+v, want %+v", h.ByDay, want)
	}
	if h.ByCamera[0].CameraID != "10" || h.ByCamera[0].Failures != 2 {
		t.Fatalf("by_camera = %+v", h.ByCamera)
	}
}

func TestSortCameraIDs(t *testing.T) {
	got := SortCameraIDs([]string{"10", "2", "front", "2", "", "9", "back"})
	want := []string{"2", "9", "10", "back", "front"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortCameraIDs = %v, want %v", got, want)
	}
}
