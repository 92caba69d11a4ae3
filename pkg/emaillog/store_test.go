package emaillog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/internal/testutil"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestStore(t *testing.T, max int, clock *fakeClock) *Store {
	t.Helper()
	gdb := testutil.SetupTestDB(t)
	return NewStore(gdb, Options{MaxEntries: max, Now: clock.Now, Location: time.UTC})
}

func mustLog(t *testing.T, s *Store, email string, typ Type) string {
	t.Helper()
	id, err := s.LogAttempt(email, "User", typ, []string{"Mumbai"})
	if err != nil {
		t.Fatalf("LogAttempt returned error: %v", err)
	}
	return id
}

func mustUpdate(t *testing.T, s *Store, id string, patch Patch) {
	t.Helper()
	if err := s.Update(id, patch); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
}

func TestLogAttemptCreatesPendingEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 10, clock)

	id := mustLog(t, s, "A@X.com", TypeDaily)
	entry, ok, err := s.Get(id)
	if err != nil || !ok {
		t.Fatalf("Get returned ok=%v err=%v", ok, err)
	}
	if entry.Status != StatusPending || entry.Type != TypeDaily {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", entry.Email)
	}
	if !entry.Timestamp.Equal(clock.now) {
		t.Fatalf("expected timestamp %v, got %v", clock.now, entry.Timestamp)
	}
	if len(entry.Cities) != 1 || entry.Cities[0] != "Mumbai" {
		t.Fatalf("unexpected cities %v", entry.Cities)
	}
}

func TestRetentionCapKeepsNewest(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 5, clock)

	var ids []string
	for i := 0; i < 8; i++ {
		ids = append(ids, mustLog(t, s, "a@x.com", TypeTest))
		clock.now = clock.now.Add(time.Second)
	}

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 entries after trimming, got %d", len(all))
	}
	for i, entry := range all {
		want := ids[len(ids)-1-i]
		if entry.ID != want {
			t.Fatalf("entry %d = %s, want %s", i, entry.ID, want)
		}
	}
}

func TestUpdateMergesFields(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 10, clock)
	id := mustLog(t, s, "a@x.com", TypeDaily)

	ms := int64(1532)
	mustUpdate(t, s, id, Patch{
		Status:         StatusSent,
		Transport:      "emailjs",
		DeliveryTimeMs: &ms,
		Payload:        json.RawMessage(`{"to_email":"a@x.com"}`),
	})

	entry, _, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if entry.Status != StatusSent || entry.Transport != "emailjs" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.DeliveryTimeMs == nil || *entry.DeliveryTimeMs != ms {
		t.Fatalf("expected delivery time %d, got %v", ms, entry.DeliveryTimeMs)
	}
	var payload map[string]string
	if err := json.Unmarshal(entry.Payload, &payload); err != nil || payload["to_email"] != "a@x.com" {
		t.Fatalf("unexpected payload %s (%v)", entry.Payload, err)
	}

	mustUpdate(t, s, "missing-id", Patch{Status: StatusFailed, Error: "nope"})
	all, _ := s.ListAll()
	if len(all) != 1 || all[0].Status != StatusSent {
		t.Fatalf("update of unknown id must be a no-op, got %+v", all)
	}
}

func TestStatsSuccessRate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)

	for i := 0; i < 7; i++ {
		mustUpdate(t, s, mustLog(t, s, "a@x.com", TypeDaily), Patch{Status: StatusSent})
	}
	for i := 0; i < 3; i++ {
		mustUpdate(t, s, mustLog(t, s, "b@x.com", TypeDaily), Patch{Status: StatusFailed, Error: "status 500"})
	}
	mustLog(t, s, "c@x.com", TypeDaily)

	stats, err := s.Stats(7)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.SuccessRate != 70.0 {
		t.Fatalf("expected success rate 70, got %v", stats.SuccessRate)
	}
	if stats.Total != 11 || stats.Sent != 7 || stats.Failed != 3 || stats.Pending != 1 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	day := stats.Daily["2025-01-14"]
	if day.Sent != 7 || day.Failed != 3 || day.Total != 11 {
		t.Fatalf("unexpected daily breakdown %+v", day)
	}
	if got := stats.ByRecipient["b@x.com"]; got.Failed != 3 || got.Total != 3 {
		t.Fatalf("unexpected recipient breakdown %+v", got)
	}
}

func TestStatsWithoutSettledEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)

	stats, err := s.Stats(7)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.SuccessRate != 0 {
		t.Fatalf("expected zero success rate, got %v", stats.SuccessRate)
	}

	mustLog(t, s, "a@x.com", TypeDaily)
	stats, _ = s.Stats(7)
	if stats.SuccessRate != 0 || stats.Pending != 1 {
		t.Fatalf("expected only pending and zero rate, got %+v", stats)
	}
}

func TestStatsWindowExcludesOldEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)
	mustUpdate(t, s, mustLog(t, s, "a@x.com", TypeDaily), Patch{Status: StatusFailed})

	clock.now = time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	mustUpdate(t, s, mustLog(t, s, "a@x.com", TypeDaily), Patch{Status: StatusSent})

	stats, err := s.Stats(7)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Total != 1 || stats.SuccessRate != 100 {
		t.Fatalf("expected only the recent entry, got %+v", stats)
	}
	all, _ := s.Stats(0)
	if all.Total != 2 {
		t.Fatalf("expected whole log for days=0, got %d", all.Total)
	}
}

func TestHasSentToday(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	clock := &fakeClock{now: time.Date(2025, 1, 14, 23, 50, 0, 0, loc)}
	gdb := testutil.SetupTestDB(t)
	s := NewStore(gdb, Options{MaxEntries: 100, Now: clock.Now, Location: loc})

	sent, err := s.HasSentToday("a@x.com")
	if err != nil || sent {
		t.Fatalf("expected nothing sent yet, got %v (%v)", sent, err)
	}

	pending := mustLog(t, s, "a@x.com", TypeDaily)
	if sent, _ := s.HasSentToday("a@x.com"); sent {
		t.Fatal("pending entry must not count as sent")
	}
	mustUpdate(t, s, pending, Patch{Status: StatusSent})
	if sent, _ := s.HasSentToday("A@x.com"); !sent {
		t.Fatal("expected sent entry to count")
	}
	if sent, _ := s.HasSentToday("b@x.com"); sent {
		t.Fatal("other recipients must not be affected")
	}

	clock.now = time.Date(2025, 1, 15, 0, 5, 0, 0, loc)
	if sent, _ := s.HasSentToday("a@x.com"); sent {
		t.Fatal("yesterday's send must not count for today")
	}
}

func TestLastSentFor(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)

	if _, ok, err := s.LastSentFor("a@x.com"); ok || err != nil {
		t.Fatalf("expected none, got ok=%v err=%v", ok, err)
	}

	first := mustLog(t, s, "a@x.com", TypeDaily)
	mustUpdate(t, s, first, Patch{Status: StatusSent})
	clock.now = clock.now.Add(time.Hour)
	second := mustLog(t, s, "a@x.com", TypeTest)
	mustUpdate(t, s, second, Patch{Status: StatusSent})
	mustUpdate(t, s, mustLog(t, s, "a@x.com", TypeDaily), Patch{Status: StatusFailed})

	last, ok, err := s.LastSentFor("a@x.com")
	if err != nil || !ok {
		t.Fatalf("LastSentFor returned ok=%v err=%v", ok, err)
	}
	if last.ID != second {
		t.Fatalf("expected most recent sent entry %s, got %s", second, last.ID)
	}
}

func TestFilters(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)
	mustLog(t, s, "old@x.com", TypeDaily)

	clock.now = time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	mustUpdate(t, s, mustLog(t, s, "a@x.com", TypeDaily), Patch{Status: StatusSent})
	mustLog(t, s, "b@x.com", TypeDemo)

	forA, _ := s.ListFor("a@x.com")
	if len(forA) != 1 {
		t.Fatalf("expected 1 entry for a@x.com, got %d", len(forA))
	}
	pending, _ := s.ListByStatus(StatusPending)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(pending))
	}
	recent, _ := s.ListSince(7)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent entries, got %d", len(recent))
	}
	old, _ := s.ListOlderThan(7)
	if len(old) != 1 || old[0].Email != "old@x.com" {
		t.Fatalf("expected the old entry, got %+v", old)
	}
}

func TestClearOlderThanAndClearAll(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)
	mustLog(t, s, "a@x.com", TypeDaily)
	mustLog(t, s, "a@x.com", TypeDaily)

	clock.now = time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	mustLog(t, s, "a@x.com", TypeDaily)

	deleted, err := s.ClearOlderThan(30)
	if err != nil {
		t.Fatalf("ClearOlderThan returned error: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted entries, got %d", deleted)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll returned error: %v", err)
	}
	all, _ := s.ListAll()
	if len(all) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(all))
	}
}

func TestListAndClearBeforeAreStrict(t *testing.T) {
	boundary := time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: boundary.Add(-time.Second)}
	s := newTestStore(t, 100, clock)
	mustLog(t, s, "old@x.com", TypeDaily)
	clock.now = boundary
	mustLog(t, s, "edge@x.com", TypeDaily)

	old, err := s.ListBefore(boundary)
	if err != nil || len(old) != 1 || old[0].Email != "old@x.com" {
		t.Fatalf("expected only the older entry, got %+v err=%v", old, err)
	}
	deleted, err := s.ClearBefore(boundary)
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deleted entry, got %d err=%v", deleted, err)
	}
	all, _ := s.ListAll()
	if len(all) != 1 || all[0].Email != "edge@x.com" {
		t.Fatalf("expected the boundary entry to remain, got %+v", all)
	}
}

func TestExport(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)}
	s := newTestStore(t, 100, clock)

	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected empty array, got %s", data)
	}

	mustLog(t, s, "a@x.com", TypeDaily)
	clock.now = clock.now.Add(time.Minute)
	mustLog(t, s, "b@x.com", TypeTest)

	data, err = s.Export()
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(entries) != 2 || entries[0].Email != "b@x.com" {
		t.Fatalf("expected newest first, got %+v", entries)
	}
}
