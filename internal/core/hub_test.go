package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/vovakirdan/chatrelay/internal/history"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAttachJoinsLobbyAndAnnounces(t *testing.T) {
	hub := NewHub(nil)

	alice := attach(t, hub, "alice")
	if ok := mustEvent(t, alice.Events, EventAuthOK); ok.User != "alice" {
		t.Fatalf("unexpected auth_ok: %+v", ok)
	}

	joined := mustEvent(t, alice.Events, EventRoomJoined)
	if joined.Room != DefaultRoom || joined.IsAdmin {
		t.Fatalf("unexpected room_joined: %+v", joined)
	}
	mustEvent(t, alice.Events, EventHistory)
	mustNotice(t, alice, DefaultRoom, "alice joined")

	bob := attach(t, hub, "bob")
	mustNotice(t, alice, DefaultRoom, "bob joined")
	users := mustEvent(t, alice.Events, EventUserList)
	if !slices.Equal(users.Users, []string{"alice", "bob"}) {
		t.Fatalf("unexpected user list: %v", users.Users)
	}
	rooms := mustEvent(t, alice.Events, EventRoomList)
	if rooms.Rooms[0].Name != DefaultRoom || rooms.Rooms[0].Members != 2 {
		t.Fatalf("unexpected room list: %+v", rooms.Rooms)
	}

	if got := hub.CurrentRoom(bob); got != DefaultRoom {
		t.Fatalf("bob is in %q", got)
	}
}

func TestAttachRejectsSecondSessionForUser(t *testing.T) {
	hub := NewHub(nil)
	attach(t, hub, "alice")

	err := hub.Attach(NewClient("alice", "elsewhere", 0))
	var coreErr *CoreError
	if !errors.As(err, &coreErr) || coreErr.Code != ErrCodeAlreadyOnline {
		t.Fatalf("expected already_online, got %v", err)
	}
	if got := hub.Online(); !slices.Equal(got, []string{"alice"}) {
		t.Fatalf("online = %v", got)
	}
}

func TestAttachFailsWhenClientCannotTakeJoinEvents(t *testing.T) {
	hub := NewHub(nil)
	bob := attach(t, hub, "bob")

	alice := NewClient("alice", "test", MinSendBuffer)
	for len(alice.Events) < cap(alice.Events) {
		alice.Events <- &Event{Kind: EventRoomMessage}
	}

	err := hub.Attach(alice)
	var coreErr *CoreError
	if !errors.As(err, &coreErr) || coreErr.Code != ErrCodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	select {
	case <-alice.Done():
	default:
		t.Fatal("alice should be closed")
	}
	if got := hub.Online(); !slices.Equal(got, []string{"bob"}) {
		t.Fatalf("online = %v", got)
	}

	// The name is free again for a fresh session.
	drain(bob)
	attach(t, hub, "alice")
	mustNotice(t, bob, DefaultRoom, "alice joined")
}

func TestNewClientBufferFloor(t *testing.T) {
	if got := cap(NewClient("a", "test", 4).Events); got != MinSendBuffer {
		t.Fatalf("cap = %d, want %d", got, MinSendBuffer)
	}
	if got := cap(NewClient("a", "test", 0).Events); got != DefaultSendBuffer {
		t.Fatalf("cap = %d, want %d", got, DefaultSendBuffer)
	}
	if got := cap(NewClient("a", "test", 100).Events); got != 100 {
		t.Fatalf("cap = %d, want 100", got)
	}
}

func TestChatBroadcastPreservesOrderAndEchoes(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	drain(alice)
	drain(bob)

	hub.Handle(alice, &Command{Kind: CommandChat, Text: "first"})
	hub.Handle(alice, &Command{Kind: CommandChat, Text: "second"})

	for _, c := range []*Client{alice, bob} {
		first := mustEvent(t, c.Events, EventRoomMessage)
		second := mustEvent(t, c.Events, EventRoomMessage)
		if first.Message.Text != "first" || second.Message.Text != "second" {
			t.Fatalf("%s saw %q then %q", c.Name, first.Message.Text, second.Message.Text)
		}
		if first.Message.From != "alice" || first.Message.Room != DefaultRoom {
			t.Fatalf("unexpected message: %+v", first.Message)
		}
	}
}

func TestChatRejectsEmptyAndForeignRoom(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	drain(alice)

	hub.Handle(alice, &Command{Kind: CommandChat, Text: "   "})
	mustError(t, alice, ErrCodeBadRequest)

	hub.Handle(alice, &Command{Kind: CommandChat, Room: "elsewhere", Text: "hi"})
	mustError(t, alice, ErrCodeNotInRoom)
}

func TestChatStaysInsideRoom(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")

	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	drain(alice)
	drain(bob)

	hub.Handle(alice, &Command{Kind: CommandChat, Text: "only dev"})
	if ev := mustEvent(t, alice.Events, EventRoomMessage); ev.Message.Room != "dev" {
		t.Fatalf("message went to %q", ev.Message.Room)
	}

	for _, ev := range drain(bob) {
		if ev.Kind == EventRoomMessage {
			t.Fatalf("bob must not see dev traffic: %+v", ev)
		}
	}
}

func TestPrivateMessage(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	drain(alice)
	drain(bob)

	hub.Handle(alice, &Command{Kind: CommandPrivate, Target: "bob", Text: "psst"})
	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventPrivateMessage)
		if ev.Message.From != "alice" || ev.Message.To != "bob" || ev.Message.Text != "psst" {
			t.Fatalf("unexpected private message for %s: %+v", c.Name, ev.Message)
		}
	}

	hub.Handle(alice, &Command{Kind: CommandPrivate, Target: "carol", Text: "hello?"})
	mustError(t, alice, ErrCodeUserNotFound)
}

func TestCreateRoomMakesCreatorAdmin(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	drain(alice)

	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "  secret ", Password: "pw123"})
	joined := mustEvent(t, alice.Events, EventRoomJoined)
	if joined.Room != "secret" || !joined.IsAdmin {
		t.Fatalf("unexpected room_joined: %+v", joined)
	}
	if joined.Info.Creator != "alice" || !joined.Info.Private {
		t.Fatalf("unexpected room info: %+v", joined.Info)
	}

	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "secret"})
	mustError(t, alice, ErrCodeRoomExists)

	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: DefaultRoom})
	mustError(t, alice, ErrCodeRoomExists)

	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: strings.Repeat("x", 65)})
	mustError(t, alice, ErrCodeBadRequest)
}

func TestCreateRoomDropsLeftoverHistory(t *testing.T) {
	ctx := context.Background()
	hist := history.New(nil, 100)
	if _, err := hist.Append(ctx, "secret", "alice", "the launch code is 1234"); err != nil {
		t.Fatal(err)
	}
	hub := NewHub(hist)
	mallory := attach(t, hub, "mallory")
	drain(mallory)

	hub.Handle(mallory, &Command{Kind: CommandCreateRoom, Room: "secret", Password: "pw123"})
	mustEvent(t, mallory.Events, EventRoomJoined)
	for _, m := range mustEvent(t, mallory.Events, EventHistory).Messages {
		if m.From == "alice" {
			t.Fatalf("new room exposed an earlier line: %+v", m)
		}
	}

	drain(mallory)
	hub.Handle(mallory, &Command{Kind: CommandHistory, Room: "secret"})
	for _, m := range mustEvent(t, mallory.Events, EventHistory).Messages {
		if m.From == "alice" {
			t.Fatalf("history request exposed an earlier line: %+v", m)
		}
	}
	for _, e := range hist.Recent("secret", 0) {
		if e.Author == "alice" {
			t.Fatalf("log still holds %+v", e)
		}
	}
}

func TestRenameRoomDropsLeftoverHistoryOfTarget(t *testing.T) {
	ctx := context.Background()
	hist := history.New(nil, 100)
	if _, err := hist.Append(ctx, "ops", "alice", "old ops line"); err != nil {
		t.Fatal(err)
	}
	hub := NewHub(hist)
	mallory := attach(t, hub, "mallory")
	hub.Handle(mallory, &Command{Kind: CommandCreateRoom, Room: "dev"})
	hub.Handle(mallory, &Command{Kind: CommandChat, Text: "dev line"})
	hub.Handle(mallory, &Command{Kind: CommandRenameRoom, Room: "dev", NewName: "ops"})
	drain(mallory)

	hub.Handle(mallory, &Command{Kind: CommandHistory, Room: "ops"})
	var kept bool
	for _, m := range mustEvent(t, mallory.Events, EventHistory).Messages {
		if m.Text == "old ops line" {
			t.Fatalf("renamed room exposed an earlier line: %+v", m)
		}
		if m.Text == "dev line" {
			kept = true
		}
	}
	if !kept {
		t.Fatal("history of the renamed room was lost")
	}
}

func TestJoinPrivateRoomRequiresPassword(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "secret", Password: "pw123"})
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "secret", Password: "wrong"})
	mustError(t, bob, ErrCodeAuthFailed)
	if got := hub.CurrentRoom(bob); got != DefaultRoom {
		t.Fatalf("bob moved to %q", got)
	}

	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "secret", Password: "pw123"})
	joined := mustEvent(t, bob.Events, EventRoomJoined)
	if joined.Room != "secret" || joined.IsAdmin {
		t.Fatalf("unexpected room_joined: %+v", joined)
	}
	if got := hub.CurrentRoom(bob); got != "secret" {
		t.Fatalf("bob is in %q", got)
	}

	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "secret", Password: "pw123"})
	mustError(t, bob, ErrCodeAlreadyJoined)

	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "nowhere"})
	mustError(t, bob, ErrCodeNotFound)
}

func TestJoinMovesBetweenRoomsWithNotices(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
	mustNotice(t, alice, "dev", "bob joined")

	hub.Handle(bob, &Command{Kind: CommandLeaveRoom})
	mustNotice(t, alice, "dev", "bob left")
	if got := hub.CurrentRoom(bob); got != DefaultRoom {
		t.Fatalf("bob is in %q", got)
	}

	members, err := hub.Members("dev")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []string{"alice"}) {
		t.Fatalf("members = %v", members)
	}

	drain(bob)
	hub.Handle(bob, &Command{Kind: CommandLeaveRoom})
	mustError(t, bob, ErrCodeAlreadyJoined)
}

func TestEmptyRoomsAreRetained(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	hub.Handle(alice, &Command{Kind: CommandLeaveRoom})

	rooms := hub.Rooms()
	if len(rooms) != 2 || rooms[1].Name != "dev" || rooms[1].Members != 0 {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
}

func TestKickMovesTargetToLobby(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "secret", Password: "pw123"})
	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "secret", Password: "pw123"})
	drain(alice)
	drain(bob)

	hub.Handle(alice, &Command{Kind: CommandKick, Room: "secret", Target: "bob"})

	if kicked := mustEvent(t, bob.Events, EventKicked); kicked.Room != "secret" {
		t.Fatalf("unexpected kick: %+v", kicked)
	}
	if joined := mustEvent(t, bob.Events, EventRoomJoined); joined.Room != DefaultRoom {
		t.Fatalf("bob landed in %q", joined.Room)
	}
	mustNotice(t, alice, "secret", "bob was kicked")

	drain(bob)
	hub.Handle(bob, &Command{Kind: CommandChat, Text: "back in lobby"})
	if msg := mustEvent(t, bob.Events, EventRoomMessage); msg.Message.Room != DefaultRoom {
		t.Fatalf("message went to %q", msg.Message.Room)
	}
}

func TestKickRequiresCreatorAndMembership(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	carol := attach(t, hub, "carol")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
	drain(alice)
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandKick, Room: "dev", Target: "alice"})
	mustError(t, bob, ErrCodePermissionDenied)

	hub.Handle(alice, &Command{Kind: CommandKick, Room: "dev", Target: "carol"})
	mustError(t, alice, ErrCodeNotInRoom)

	hub.Handle(alice, &Command{Kind: CommandKick, Room: "dev", Target: "alice"})
	mustError(t, alice, ErrCodeBadRequest)

	drain(carol)
	hub.Handle(carol, &Command{Kind: CommandKick, Room: DefaultRoom, Target: "bob"})
	mustError(t, carol, ErrCodePermissionDenied)
}

func TestRenameRoomUpdatesMembers(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
	hub.Handle(alice, &Command{Kind: CommandChat, Text: "before rename"})
	drain(alice)
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandRenameRoom, Room: "dev", NewName: "ops"})
	mustError(t, bob, ErrCodePermissionDenied)

	hub.Handle(alice, &Command{Kind: CommandRenameRoom, Room: "dev", NewName: "ops"})
	if joined := mustEvent(t, bob.Events, EventRoomJoined); joined.Room != "ops" {
		t.Fatalf("unexpected room_joined: %+v", joined)
	}
	if hub.CurrentRoom(alice) != "ops" || hub.CurrentRoom(bob) != "ops" {
		t.Fatalf("members not moved: alice=%q bob=%q", hub.CurrentRoom(alice), hub.CurrentRoom(bob))
	}

	if _, err := hub.Members("dev"); err == nil {
		t.Fatal("old name still resolves")
	}

	drain(bob)
	hub.Handle(bob, &Command{Kind: CommandHistory, Room: "ops"})
	hist := mustEvent(t, bob.Events, EventHistory)
	var found bool
	for _, m := range hist.Messages {
		if m.Text == "before rename" {
			found = true
			if m.Room != "ops" {
				t.Fatalf("entry still under %q", m.Room)
			}
		}
	}
	if !found {
		t.Fatal("history should follow the rename")
	}

	hub.Handle(alice, &Command{Kind: CommandRenameRoom, Room: DefaultRoom, NewName: "hall"})
	mustError(t, alice, ErrCodePermissionDenied)

	hub.Handle(alice, &Command{Kind: CommandRenameRoom, Room: "ops", NewName: DefaultRoom})
	mustError(t, alice, ErrCodeRoomExists)
}

func TestSetPasswordTogglesPrivacy(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandSetPassword, Room: "dev", Password: "x"})
	mustError(t, bob, ErrCodePermissionDenied)

	hub.Handle(alice, &Command{Kind: CommandSetPassword, Room: "dev", Password: "newpw1"})
	if list := mustEvent(t, bob.Events, EventRoomList); !list.Rooms[1].Private {
		t.Fatalf("dev should be private: %+v", list.Rooms)
	}

	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
	mustError(t, bob, ErrCodeAuthFailed)

	hub.Handle(alice, &Command{Kind: CommandSetPassword, Room: "dev", Password: ""})
	drain(bob)
	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
	mustEvent(t, bob.Events, EventRoomJoined)
}

func TestDeleteRoomEvacuatesMembers(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandDeleteRoom, Room: "dev"})
	mustError(t, bob, ErrCodePermissionDenied)

	hub.Handle(alice, &Command{Kind: CommandDeleteRoom, Room: "dev"})
	if kicked := mustEvent(t, bob.Events, EventKicked); kicked.Room != "dev" {
		t.Fatalf("unexpected kick: %+v", kicked)
	}
	if joined := mustEvent(t, bob.Events, EventRoomJoined); joined.Room != DefaultRoom {
		t.Fatalf("bob landed in %q", joined.Room)
	}
	if got := hub.CurrentRoom(alice); got != DefaultRoom {
		t.Fatalf("alice is in %q", got)
	}
	if n := len(hub.Rooms()); n != 1 {
		t.Fatalf("%d rooms remain", n)
	}

	hub.Handle(alice, &Command{Kind: CommandDeleteRoom, Room: DefaultRoom})
	mustError(t, alice, ErrCodePermissionDenied)
}

func TestGetHistoryOfPrivateRoomRequiresMembership(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	bob := attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "secret", Password: "pw123"})
	hub.Handle(alice, &Command{Kind: CommandChat, Text: "classified"})
	drain(bob)

	hub.Handle(bob, &Command{Kind: CommandHistory, Room: "secret"})
	mustError(t, bob, ErrCodePermissionDenied)

	hub.Handle(bob, &Command{Kind: CommandHistory, Room: DefaultRoom, Limit: 1})
	if hist := mustEvent(t, bob.Events, EventHistory); len(hist.Messages) != 1 {
		t.Fatalf("got %d entries, want 1", len(hist.Messages))
	}
}

func TestListUsers(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")
	attach(t, hub, "bob")
	hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
	drain(alice)

	hub.Handle(alice, &Command{Kind: CommandListUsers})
	if got := mustEvent(t, alice.Events, EventUserList).Users; !slices.Equal(got, []string{"alice", "bob"}) {
		t.Fatalf("online users = %v", got)
	}

	hub.Handle(alice, &Command{Kind: CommandListUsers, Room: DefaultRoom})
	ev := mustEvent(t, alice.Events, EventUserList)
	if ev.Room != DefaultRoom || !slices.Equal(ev.Users, []string{"bob"}) {
		t.Fatalf("unexpected lobby list: %+v", ev)
	}

	hub.Handle(alice, &Command{Kind: CommandListUsers, Room: "ghost"})
	mustError(t, alice, ErrCodeNotFound)
}

func TestDetachIsIdempotentUnderKickRace(t *testing.T) {
	for range 20 {
		hub := NewHub(nil)
		alice := attach(t, hub, "alice")
		bob := attach(t, hub, "bob")
		carol := attach(t, hub, "carol")
		hub.Handle(alice, &Command{Kind: CommandCreateRoom, Room: "dev"})
		hub.Handle(bob, &Command{Kind: CommandJoinRoom, Room: "dev"})
		hub.Handle(carol, &Command{Kind: CommandJoinRoom, Room: "dev"})
		drain(carol)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); hub.Detach(bob) }()
		go func() { defer wg.Done(); hub.Detach(bob) }()
		go func() { defer wg.Done(); hub.Handle(alice, &Command{Kind: CommandKick, Room: "dev", Target: "bob"}) }()
		wg.Wait()

		leftNotices := 0
		for _, ev := range drain(carol) {
			if ev.Kind == EventRoomMessage && ev.Message.From == SystemUser &&
				strings.HasPrefix(ev.Message.Text, "bob ") &&
				(strings.Contains(ev.Message.Text, "left") || strings.Contains(ev.Message.Text, "kicked")) {
				leftNotices++
			}
		}
		if leftNotices != 1 {
			t.Fatalf("carol saw %d departure notices for bob", leftNotices)
		}
		if got := hub.Online(); !slices.Equal(got, []string{"alice", "carol"}) {
			t.Fatalf("online = %v", got)
		}

		select {
		case <-bob.Done():
		default:
			t.Fatal("bob should be closed")
		}
	}
}

func TestSlowClientIsEvicted(t *testing.T) {
	hub := NewHub(nil)

	slow := NewClient("slow", "test", MinSendBuffer)
	if err := hub.Attach(slow); err != nil {
		t.Fatal(err)
	}

	fast := attach(t, hub, "fast")
	for range 20 {
		hub.Handle(fast, &Command{Kind: CommandChat, Text: "spam"})
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client should have been evicted")
	}
	if got := hub.Online(); !slices.Equal(got, []string{"fast"}) {
		t.Fatalf("online = %v", got)
	}
	mustNotice(t, fast, DefaultRoom, "slow left")
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	alice := attach(t, hub, "alice")

	hub.Shutdown()

	<-alice.Done()
	if got := hub.Online(); len(got) != 0 {
		t.Fatalf("online after shutdown = %v", got)
	}

	// Detach after shutdown is harmless.
	hub.Detach(alice)
	hub.Handle(alice, &Command{Kind: CommandChat, Text: "ignored"})
}
