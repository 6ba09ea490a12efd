// internal/history/summary.go - Aggregations over the check journal
package history

import (
	"sort"
	"strconv"
	"time"

	"camwatch/internal/database"
)

const DefaultRecentLimit = 50

type HostSummary struct {
	HostID        string                 `json:"host_id"`
	HostName      string                 `json:"host_name"`
	TotalChecks   int                    `json:"total_checks"`
	Failures      int                    `json:"failures"`
	Errors        int                    `json:"errors"`
	Skipped       int                    `json:"skipped"`
	CameraCounts  map[string]int         `json:"camera_failures"`
	LastStatus    string                 `json:"last_status,omitempty"`
	LastCheckedAt *time.Time             `json:"last_checked_at,omitempty"`
	Recent        []database.CheckRecord `json:"recent"`
}

type Summary struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Timezone    string        `json:"timezone"`
	Hosts       []HostSummary `json:"hosts"`
}

// Summarize builds lifetime totals and the latest recentN records per host.
// records may be in any order. Hosts with history but no longer configured
// are included under their recorded name.
func Summarize(records []database.CheckRecord, hosts []database.Host, recentN int, loc *time.Location, now time.Time) *Summary {
	if recentN <= 0 {
		recentN = DefaultRecentLimit
	}
	if loc == nil {
		loc = time.UTC
	}

	byHost := make(map[string]*HostSummary)
	var order []string
	get := func(id, name string) *HostSummary {
		if hs, ok := byHost[id]; ok {
			return hs
		}
		hs := &HostSummary{HostID: id, HostName: name, CameraCounts: map[string]int{}, Recent: []database.CheckRecord{}}
		byHost[id] = hs
		order = append(order, id)
		return hs
	}

	for _, h := range hosts {
		get(h.ID, h.Name)
	}

	sorted := append([]database.CheckRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].Sequence > sorted[j].Sequence
	})

	for _, rec := range sorted {
		hs := get(rec.HostID, rec.HostName)
		hs.TotalChecks++
		switch rec.Status {
		case database.StatusFailure:
			hs.Failures++
			for _, cam := range rec.FailingCameraIDs {
				hs.CameraCounts[cam]++
			}
		case database.StatusError:
			hs.Errors++
		case database.StatusSkipped:
			hs.Skipped++
		}
		if hs.LastCheckedAt == nil {
			ts := rec.Timestamp.In(loc)
			hs.LastCheckedAt = &ts
			hs.LastStatus = rec.Status
		}
		if len(hs.Recent) < recentN {
			hs.Recent = append(hs.Recent, rec)
		}
	}

	summary := &Summary{GeneratedAt: now.In(loc), Timezone: loc.String()}
	for _, id := range order {
		summary.Hosts = append(summary.Hosts, *byHost[id])
	}
	return summary
}

type DayCount struct {
	Date     string `json:"date"`
	Checks   int    `json:"checks"`
	Failures int    `json:"failures"`
	Errors   int    `json:"errors"`
}

type CameraCount struct {
	CameraID string `json:"camera_id"`
	Failures int    `json:"failures"`
}

type HostHistory struct {
	HostID   string                 `json:"host_id"`
	Entries  []database.CheckRecord `json:"entries"`
	ByDay    []DayCount             `json:"by_day"`
	ByCamera []CameraCount          `json:"by_camera"`
}

// Aggregate groups one host's records by local day and by failing camera.
func Aggregate(hostID string, records []database.CheckRecord, loc *time.Location) *HostHistory {
	if loc == nil {
		loc = time.UTC
	}

	days := make(map[string]*DayCount)
	cams := make(map[string]int)
	for _, rec := range records {
		key := rec.Timestamp.In(loc).Format("2006-01-02")
		d, ok := days[key]
		if !ok {
			d = &DayCount{Date: key}
			days[key] = d
		}
		d.Checks++
		switch rec.Status {
		case database.StatusFailure:
			d.Failures++
			for _, cam := range rec.FailingCameraIDs {
				cams[cam]++
			}
		case database.StatusError:
			d.Errors++
		}
	}

	out := &HostHistory{HostID: hostID, Entries: records, ByDay: []DayCount{}, ByCamera: []CameraCount{}}
	if out.Entries == nil {
		out.Entries = []database.CheckRecord{}
	}
	for _, d := range days {
		out.ByDay = append(out.ByDay, *d)
	}
	sort.Slice(out.ByDay, func(i, j int) bool { return out.ByDay[i].Date < out.ByDay[j].Date })

	for id, n := range cams {
		out.ByCamera = append(out.ByCamera, CameraCount{CameraID: id, Failures: n})
	}
	sort.Slice(out.ByCamera, func(i, j int) bool {
		if out.ByCamera[i].Failures != out.ByCamera[j].Failures {
			return out.ByCamera[i].Failures > out.ByCamera[j].Failures
		}
		return LessCameraID(out.ByCamera[i].CameraID, out.ByCamera[j].CameraID)
	})
	return out
}

// LessCameraID orders numeric ids numerically and everything else lexically,
// numbers first.
func LessCameraID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// SortCameraIDs returns a deduplicated, stably ordered copy of ids.
func SortCameraIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.SliceStable(out, func(i, j int) bool { return LessCameraID(out[i], out[j]) })
	return out
}
