package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobdigest/internal/filter"
	"github.com/amishk599/jobdigest/internal/model"
)

func ptime(t time.Time) *time.Time { return &t }

func fixture(now time.Time) Snapshot {
	postings := []model.Posting{
		{SourceID: "gh", Provider: "greenhouse", ExternalID: "1", Title: "Go Developer", Company: "Acme", PostedAt: ptime(now.Add(-48 * time.Hour))},
		{SourceID: "gh", Provider: "greenhouse", ExternalID: "2", Title: "Backend Developer", Company: "Acme", PostedAt: ptime(now.Add(-time.Hour))},
		{SourceID: "gh", Provider: "greenhouse", ExternalID: "3", Title: "Platform Developer", Company: "Acme"},
		{SourceID: "gh", Provider: "greenhouse", ExternalID: "4", Title: "Office Manager", Company: "Acme"},
	}
	pref := model.Preference{Keyword: "developer"}
	ranked := filter.Rank(postings, pref, nil)
	records := map[model.JobKey]model.SentRecord{
		"greenhouse:1": {Key: "greenhouse:1", FirstSentAt: now.Add(-72 * time.Hour), LastSeenAt: now.Add(-24 * time.Hour)},
		"greenhouse:3": {Key: "greenhouse:3", FirstSentAt: now.Add(-40 * 24 * time.Hour), LastSeenAt: now.Add(-30 * 24 * time.Hour)},
	}
	return BuildSnapshot(model.User{ID: "u1"}, postings, ranked, records, 14*24*time.Hour, now)
}

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := fixture(now)

	if len(snap.All) != 4 || len(snap.Matched) != 3 {
		t.Fatalf("All = %d, Matched = %d, want 4 and 3", len(snap.All), len(snap.Matched))
	}
	if snap.All[0].Posting.ExternalID != "2" || snap.All[1].Posting.ExternalID != "1" {
		t.Errorf("All not sorted newest first: %s, %s", snap.All[0].Posting.ExternalID, snap.All[1].Posting.ExternalID)
	}

	status := make(map[string]string)
	for _, r := range snap.All {
		status[r.Posting.ExternalID] = r.Status()
	}
	want := map[string]string{"1": "carryover", "2": "new", "3": "expired", "4": "filtered"}
	for id, w := range want {
		if status[id] != w {
			t.Errorf("posting %s status = %q, want %q", id, status[id], w)
		}
	}

	counts := snap.Counts()
	if counts["new"] != 1 || counts["carryover"] != 1 || counts["expired"] != 1 {
		t.Errorf("Counts = %v", counts)
	}
}

func TestAuditModel_Navigation(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := fixture(now)
	snap.Outcomes = []model.RunOutcome{{
		Type: model.RunScheduled, Status: model.RunSkipped, Detail: "alert_frequency",
		StartedAt: now, FinishedAt: now.Add(time.Second),
	}}

	var m tea.Model = auditModel{snap: snap}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	am := m.(auditModel)
	if am.activePane != 1 || am.rightCursor != 1 {
		t.Fatalf("pane = %d, cursor = %d, want 1 and 1", am.activePane, am.rightCursor)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	am = m.(auditModel)
	if am.view != viewDetail || am.detailRow.Posting.Key() != snap.Matched[1].Posting.Key() {
		t.Fatalf("detail view not opened on the selected row")
	}
	if !strings.Contains(am.View(), "Posting Details") {
		t.Error("detail view missing title")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	am = m.(auditModel)
	if am.view != viewHistory {
		t.Fatalf("view = %v, want history", am.view)
	}
	if !strings.Contains(am.renderOverlay(), "alert_frequency") {
		t.Error("history missing outcome detail")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.(auditModel).wantQuit {
		t.Error("q did not request quit")
	}
}

func TestAuditModel_CursorClamped(t *testing.T) {
	var m tea.Model = auditModel{snap: Snapshot{}}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	am := m.(auditModel)
	if am.leftCursor != 0 || am.view != viewList {
		t.Errorf("cursor = %d, view = %v on empty snapshot", am.leftCursor, am.view)
	}
}

func TestUserEntry_Label(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	user := model.User{ID: "u1", Email: "u1@example.com"}
	tests := []struct {
		name string
		last *model.RunOutcome
		want []string
	}{
		{"never run", nil, []string{"u1", "<u1@example.com>", "never run"}},
		{"success", &model.RunOutcome{Status: model.RunSuccess, Emailed: 4, StartedAt: now.Add(-3 * time.Hour)}, []string{"success", "3h ago", "4 emailed"}},
		{"skipped", &model.RunOutcome{Status: model.RunSkipped, Detail: "alert_frequency", StartedAt: now.Add(-10 * time.Minute)}, []string{"skipped", "10m ago", "alert_frequency"}},
		{"old error", &model.RunOutcome{Status: model.RunError, Detail: "fetch: timeout", StartedAt: now.Add(-72 * time.Hour)}, []string{"error", "3d ago", "fetch: timeout"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserEntry{User: user, Last: tt.last}.label(now)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("label = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestPicker_ShowsLastRunAndSelects(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var m tea.Model = pickerModel{
		entries: []UserEntry{
			{User: model.User{ID: "u1"}},
			{User: model.User{ID: "u2"}, Last: &model.RunOutcome{Status: model.RunSuccess, Emailed: 2, StartedAt: now.Add(-time.Hour)}},
		},
		now:    now,
		chosen: -1,
	}
	view := m.View()
	if !strings.Contains(view, "never run") || !strings.Contains(view, "2 emailed") {
		t.Errorf("view missing last-run summaries:\n%s", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := m.(pickerModel).chosen; got != 1 {
		t.Errorf("chosen = %d, want 1", got)
	}
}

func TestLoader_ReportsStages(t *testing.T) {
	load := func(ctx context.Context, progress Progress) (Snapshot, error) {
		progress("fetching 2 sources")
		progress("reading ledger")
		return Snapshot{User: model.User{ID: "u1"}}, nil
	}
	m := newLoaderModel("u1", time.Second, load)
	done := m.runLoad()()

	var tm tea.Model = m
	for {
		msg := tm.(loaderModel).nextStage()().(stageMsg)
		tm, _ = tm.Update(msg)
		if !msg.ok {
			break
		}
	}
	view := tm.View()
	if !strings.Contains(view, "✓ fetching 2 sources") || !strings.Contains(view, "u1: reading ledger...") {
		t.Errorf("view = %q", view)
	}

	tm, _ = tm.Update(done)
	lm := tm.(loaderModel)
	if !lm.over || lm.err != nil || lm.result.User.ID != "u1" {
		t.Errorf("over = %v, err = %v, user = %q", lm.over, lm.err, lm.result.User.ID)
	}
	if tm.View() != "" {
		t.Error("view not cleared after load")
	}
}

func TestLoader_CtrlCCancels(t *testing.T) {
	var m tea.Model = newLoaderModel("u1", time.Second, nil)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if err := m.(loaderModel).err; !errors.Is(err, errLoadCancelled) {
		t.Errorf("err = %v", err)
	}
}
