package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestMigrateFreshReportsFromZero(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 1 {
		t.Errorf("result = %+v, want 0 -> 1 changed", result)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}

	_, err := db.Migrate()
	var dirty *SchemaDirtyError
	if !errors.As(err, &dirty) {
		t.Fatalf("Migrate() error = %v, want SchemaDirtyError", err)
	}
	if dirty.Version != 1 {
		t.Errorf("dirty version = %d, want 1", dirty.Version)
	}
}

func TestInsertChatIsIdempotentByPair(t *testing.T) {
	db := testDB(t)

	first := &model.Chat{ID: "c1", Name: "Bob", Participants: []string{"u1", "u2"}}
	inserted, err := db.InsertChat(first)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first InsertChat should insert")
	}

	// Same pair in the other order under a different id.
	dup := &model.Chat{ID: "c2", Name: "Bob", Participants: []string{"u2", "u1"}}
	inserted, err = db.InsertChat(dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate pair should not be inserted")
	}

	c, err := db.ChatByPairKey(model.PairKey("u2", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.ID != "c1" {
		t.Fatalf("ChatByPairKey = %+v, want c1", c)
	}
	if len(c.Participants) != 2 || c.Participants[0] != "u1" {
		t.Errorf("participants = %v, want [u1 u2]", c.Participants)
	}
}

func TestGroupsDoNotCarryPairKey(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"g1", "g2"} {
		g := &model.Chat{ID: id, Name: "Team", IsGroup: true, Participants: []string{"u1", "u2"}, Admin: "u1"}
		if inserted, err := db.InsertChat(g); err != nil || !inserted {
			t.Fatalf("InsertChat(%s) = %v, %v", id, inserted, err)
		}
	}
	chats, err := db.ListChatsForUser("u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Errorf("got %d groups, want 2", len(chats))
	}
}

func TestGetChatMissing(t *testing.T) {
	db := testDB(t)

	c, err := db.GetChat("missing")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestMergeChatKeepsLocalUnread(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	local := &model.Chat{ID: "c1", Name: "Bob", Participants: []string{"u1", "u2"},
		UnreadCount: 3, LastMessage: "new", LastMessageAt: now}
	if _, err := db.InsertChat(local); err != nil {
		t.Fatal(err)
	}

	remote := &model.Chat{ID: "c1", Name: "Bobby", Participants: []string{"u1", "u2"},
		UnreadCount: 0, LastMessage: "old", LastMessageAt: now.Add(-time.Hour)}
	if _, err := db.MergeChat(remote); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Bobby" {
		t.Errorf("name = %q, want Bobby", c.Name)
	}
	if c.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", c.UnreadCount)
	}
	if c.LastMessage != "new" {
		t.Errorf("last message = %q, older remote preview must not win", c.LastMessage)
	}
}

func TestUnreadCounter(t *testing.T) {
	db := testDB(t)

	if _, err := db.InsertChat(&model.Chat{ID: "c1", Participants: []string{"u1", "u2"}}); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := db.IncrementUnread("c1"); err != nil {
			t.Fatal(err)
		}
	}
	changed, err := db.ResetUnread("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("first ResetUnread should report a change")
	}
	changed, err = db.ResetUnread("c1")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second ResetUnread should be a no-op")
	}
}

func TestSearchChats(t *testing.T) {
	db := testDB(t)

	chats := []*model.Chat{
		{ID: "c1", Name: "Alice", Participants: []string{"me", "a"}, LastMessage: "see you"},
		{ID: "c2", Name: "Bob", Participants: []string{"me", "b"}, LastMessage: "Lunch at noon?"},
		{ID: "c3", Name: "Alina", Participants: []string{"x", "y"}},
	}
	for _, c := range chats {
		if _, err := db.InsertChat(c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"ali", 1},
		{"LUNCH", 1},
		{"zzz", 0},
		{"%", 0},
	}
	for _, tt := range tests {
		got, err := db.SearchChats("me", tt.query)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("SearchChats(%q) = %d chats, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestMessageUpsertNeverRegressesFlags(t *testing.T) {
	db := testDB(t)

	msg := &model.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Text: "hello",
		CreatedAt: time.Now(), IsMe: true, Sent: true, Delivered: true}
	inserted, err := db.UpsertMessage(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first upsert should insert")
	}

	// A stale remote copy with different body and flags.
	stale := &model.Message{ID: "m1", ChatID: "c1", SenderID: "u1", Text: "edited",
		CreatedAt: msg.CreatedAt, IsMe: false, Sent: true}
	inserted, err = db.UpsertMessage(stale)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second upsert should merge, not insert")
	}

	got, err := db.GetMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered {
		t.Error("delivered regressed to false")
	}
	if got.Text != "hello" || !got.IsMe {
		t.Errorf("local content overwritten: text=%q isMe=%v", got.Text, got.IsMe)
	}

	// Read on the remote copy is adopted.
	stale.Read = true
	if _, err := db.UpsertMessage(stale); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetMessage("m1")
	if !got.Read || !got.Delivered || !got.Sent {
		t.Errorf("flags = sent:%v delivered:%v read:%v, want all true", got.Sent, got.Delivered, got.Read)
	}
}

func TestListMessagesOrdering(t *testing.T) {
	db := testDB(t)

	base := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	// Persisted out of order; m2 and m3 share a timestamp.
	msgs := []model.Message{
		{ID: "m3", ChatID: "c1", Text: "third", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m1", ChatID: "c1", Text: "first", CreatedAt: base},
		{ID: "m2", ChatID: "c1", Text: "second", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "other", ChatID: "c2", Text: "elsewhere", CreatedAt: base},
	}
	added, err := db.UpsertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 4 {
		t.Fatalf("added %d, want 4", len(added))
	}

	got, err := db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m1", "m3", "m2"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	again, err := db.UpsertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("re-merge added %v, want nothing", again)
	}
}

func TestMarkDeliveredAndReadAreCompareAndSet(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	msgs := []model.Message{
		{ID: "mine", ChatID: "c1", SenderID: "me", CreatedAt: now, IsMe: true, Sent: true},
		{ID: "theirs", ChatID: "c1", SenderID: "bob", CreatedAt: now, Sent: true, Delivered: true},
	}
	if _, err := db.UpsertMessages(msgs); err != nil {
		t.Fatal(err)
	}

	ids, err := db.MarkDelivered("c1", "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "mine" {
		t.Errorf("MarkDelivered = %v, want [mine]", ids)
	}
	ids, err = db.MarkDelivered("c1", "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("second MarkDelivered = %v, want none", ids)
	}

	ids, err = db.MarkRead("c1", "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "theirs" {
		t.Errorf("MarkRead = %v, want [theirs]", ids)
	}
	mine, _ := db.GetMessage("mine")
	if mine.Read {
		t.Error("MarkRead touched the viewer's own message")
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	msg := &model.Message{ID: "m1", ChatID: "c1", SenderID: "me", Text: "queued", CreatedAt: time.Now(), IsMe: true, Sent: true}
	if err := db.QueueOutbox(msg); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "m1" {
		t.Fatalf("pending = %v, want [m1]", pending)
	}

	listed, _ := db.ListMessages("c1")
	if len(listed) != 1 {
		t.Errorf("queued message should be listed locally, got %d", len(listed))
	}

	if err := db.MarkPushed("m1"); err != nil {
		t.Fatal(err)
	}
	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after push, want 0", len(pending))
	}
}

func TestStatusExpiryAndViews(t *testing.T) {
	db := testDB(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &model.Status{ID: "s1", UserID: "bob", Content: "hi", Type: model.StatusText,
		CreatedAt: created, ExpiresAt: created.Add(model.StatusTTL)}
	if err := db.UpsertStatus(s); err != nil {
		t.Fatal(err)
	}

	at := func(d time.Duration) int {
		list, err := db.ListStatuses([]string{"bob"}, created.Add(d))
		if err != nil {
			t.Fatal(err)
		}
		return len(list)
	}
	if at(23*time.Hour+59*time.Minute) != 1 {
		t.Error("status should be visible at +23h59m")
	}
	if at(24*time.Hour+time.Minute) != 0 {
		t.Error("status should be hidden at +24h01m")
	}

	for range 2 {
		if _, err := db.AddStatusView("s1", "alice"); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.GetStatus("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ViewedBy) != 1 || got.ViewedBy[0] != "alice" {
		t.Errorf("viewedBy = %v, want [alice]", got.ViewedBy)
	}
}

func TestReplaceOthersStatusesKeepsMine(t *testing.T) {
	db := testDB(t)

	now := time.Now()
	mk := func(id, user string) model.Status {
		return model.Status{ID: id, UserID: user, Type: model.StatusText, CreatedAt: now, ExpiresAt: now.Add(model.StatusTTL)}
	}
	for _, s := range []model.Status{mk("mine", "me"), mk("old", "bob")} {
		if err := db.UpsertStatus(&s); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.ReplaceOthersStatuses("me", []model.Status{mk("new", "carol"), mk("spoof", "me")}); err != nil {
		t.Fatal(err)
	}

	others, err := db.ListStatusesExcept("me", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(others) != 1 || others[0].ID != "new" {
		t.Errorf("others = %v, want [new]", others)
	}
	mine, err := db.ListStatuses([]string{"me"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != "mine" {
		t.Errorf("mine = %v, want [mine]", mine)
	}
}

func TestAccountLifecycle(t *testing.T) {
	db := testDB(t)

	u, err := db.Account()
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Fatal("fresh store should have no account")
	}

	if err := db.SetAccount(&model.User{ID: "u1", Phone: "+5511999", Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	u, err = db.Account()
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.ID != "u1" || u.Phone != "+5511999" {
		t.Fatalf("Account() = %+v, want u1", u)
	}

	byPhone, err := db.UserByPhone("+5511999")
	if err != nil || byPhone == nil {
		t.Fatalf("UserByPhone = %v, %v", byPhone, err)
	}

	if err := db.ClearAccount(); err != nil {
		t.Fatal(err)
	}
	if u, _ := db.Account(); u != nil {
		t.Error("account should be cleared")
	}
}

func TestContacts(t *testing.T) {
	db := testDB(t)

	if err := db.BulkUpsertContacts([]model.Contact{
		{ID: "k2", Name: "bruno", Phone: "+2"},
		{ID: "k1", Name: "Ana", Phone: "+1"},
	}); err != nil {
		t.Fatal(err)
	}
	// Empty name does not wipe the stored one.
	if err := db.UpsertContact(&model.Contact{ID: "k1", Phone: "+1"}); err != nil {
		t.Fatal(err)
	}

	list, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "Ana" || list[1].Name != "bruno" {
		t.Errorf("contacts = %+v, want Ana then bruno", list)
	}
	c, err := db.ContactByPhone("+2")
	if err != nil || c == nil || c.ID != "k2" {
		t.Errorf("ContactByPhone = %+v, %v", c, err)
	}
}

func TestCheckpoint(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.Checkpoint("k"); err != nil || ok {
		t.Fatalf("missing checkpoint = ok:%v err:%v", ok, err)
	}
	if err := db.SetCheckpoint("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint("k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.Checkpoint("k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("Checkpoint = %q, %v, %v; want v2", v, ok, err)
	}
}
