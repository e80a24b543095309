package chat

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/typeutil"
)

type RegistrySuite struct {
	suite.Suite

	registry *Registry
	nextID   uint64
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
	s.nextID = 0
}

// connect 创建并登记一个会话，name 非空时同时命名。
func (s *RegistrySuite) connect(name string) *Session {
	s.nextID++
	sess := NewSession(s.nextID, DefaultMailboxSize)
	s.Require().NoError(s.registry.Register(sess))
	if name != "" {
		s.Require().NoError(s.registry.Rename(sess, name))
	}
	return sess
}

func drain(m *Mailbox) []string {
	var entries []string
	for m.Len() > 0 {
		entry, _ := m.Take(nil)
		entries = append(entries, entry)
	}
	return entries
}

func (s *RegistrySuite) TestRegisterDeregister() {
	alice := s.connect("alice")
	s.ErrorIs(s.registry.Register(alice), merr.ErrSessionExists)
	s.Equal(1, s.registry.Count())

	s.NoError(s.registry.Deregister(alice))
	s.ErrorIs(s.registry.Deregister(alice), merr.ErrSessionNotFound)
	s.Equal(0, s.registry.Count())
	s.True(s.registry.IsNameAvailable("alice"))
	_, ok := s.registry.Lookup("alice")
	s.False(ok)
}

func (s *RegistrySuite) TestRename() {
	alice := s.connect("")
	_, ok := alice.Name()
	s.False(ok)
	s.Equal("guest-1", alice.Label())

	s.NoError(s.registry.Rename(alice, "alice"))
	s.False(s.registry.IsNameAvailable("alice"))

	found, ok := s.registry.Lookup("alice")
	s.True(ok)
	s.Same(alice, found)

	// 自己当前的名字同样视为已被占用。
	s.ErrorIs(s.registry.Rename(alice, "alice"), merr.ErrNameInUse)

	s.NoError(s.registry.Rename(alice, "alicia"))
	s.True(s.registry.IsNameAvailable("alice"))
	_, ok = s.registry.Lookup("alice")
	s.False(ok)

	bob := s.connect("bob")
	s.ErrorIs(s.registry.Rename(bob, "alicia"), merr.ErrNameInUse)
	name, _ := bob.Name()
	s.Equal("bob", name)

	stranger := NewSession(99, 0)
	s.ErrorIs(s.registry.Rename(stranger, "carol"), merr.ErrSessionNotFound)
}

func (s *RegistrySuite) TestRenameToEmptyName() {
	alice := s.connect("")
	s.NoError(s.registry.Rename(alice, ""))

	// 空名字是一个真实的名字，与未命名不同。
	name, ok := alice.Name()
	s.True(ok)
	s.Equal("", name)
	s.Equal("", alice.Label())
	s.False(s.registry.IsNameAvailable(""))
	found, ok := s.registry.Lookup("")
	s.True(ok)
	s.Same(alice, found)

	bob := s.connect("")
	s.ErrorIs(s.registry.Rename(bob, ""), merr.ErrNameInUse)
	s.Equal("guest-2", bob.Label())

	s.NoError(s.registry.Rename(alice, "alice"))
	s.True(s.registry.IsNameAvailable(""))
}

func (s *RegistrySuite) TestConcurrentRenameIsUnique() {
	const workers = 32
	sessions := make([]*Session, workers)
	for i := range sessions {
		sessions[i] = s.connect("")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*Session
	)
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			if s.registry.Rename(sess, "popular") == nil {
				mu.Lock()
				winners = append(winners, sess)
				mu.Unlock()
			}
		}(sess)
	}
	wg.Wait()

	s.Len(winners, 1)
	found, ok := s.registry.Lookup("popular")
	s.True(ok)
	s.Same(winners[0], found)
}

func (s *RegistrySuite) TestJoinLeave() {
	alice := s.connect("alice")

	s.True(s.registry.Join("dev", alice))
	s.False(s.registry.Join("dev", alice))
	s.True(s.registry.RoomExists("dev"))
	s.Equal([]string{"alice"}, s.registry.Members("dev"))

	rooms := s.registry.RoomsFor(alice)
	s.True(rooms.Equal(typeutil.NewSet("dev")))
	// 快照与会话内部记录相互独立。
	rooms.Insert("elsewhere")
	s.False(s.registry.RoomsFor(alice).Contain("elsewhere"))

	s.False(s.registry.Leave("ops", alice))
	s.True(s.registry.Leave("dev", alice))
	s.False(s.registry.Leave("dev", alice))

	// 最后一个成员离开后房间被删除。
	s.False(s.registry.RoomExists("dev"))
	s.Nil(s.registry.Members("dev"))
	s.Equal(0, s.registry.RoomsFor(alice).Len())

	stranger := NewSession(99, 0)
	s.False(s.registry.Join("dev", stranger))
	s.False(s.registry.RoomExists("dev"))
}

func (s *RegistrySuite) TestMembershipReciprocity() {
	const (
		workers = 16
		ops     = 200
	)
	rooms := []string{"a", "b", "c", "d"}
	sessions := make([]*Session, workers)
	for i := range sessions {
		sessions[i] = s.connect("user" + strconv.Itoa(i))
	}

	var wg sync.WaitGroup
	for i, sess := range sessions {
		wg.Add(1)
		go func(seed int64, sess *Session) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for j := 0; j < ops; j++ {
				room := rooms[rnd.Intn(len(rooms))]
				if rnd.Intn(2) == 0 {
					s.registry.Join(room, sess)
				} else {
					s.registry.Leave(room, sess)
				}
			}
		}(int64(i), sess)
	}
	wg.Wait()

	snapshot := s.registry.Snapshot()
	for _, sess := range sessions {
		expected := typeutil.NewSet[string]()
		for room, members := range snapshot.Rooms {
			for _, label := range members {
				if label == sess.Label() {
					expected.Insert(room)
				}
			}
		}
		s.True(expected.Equal(s.registry.RoomsFor(sess)), sess.Label())
	}
	for room, members := range snapshot.Rooms {
		s.NotEmpty(members, room)
	}
}

func (s *RegistrySuite) TestBroadcastExclusion() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	carol := s.connect("carol")
	dave := s.connect("dave")
	for _, sess := range []*Session{alice, bob, carol} {
		s.registry.Join("dev", sess)
	}

	s.NoError(s.registry.Broadcast(alice, "dev", formatChat("alice", "hi team")))

	s.Empty(drain(alice.mailbox))
	s.Equal([]string{"[alice] >> hi team\r\n"}, drain(bob.mailbox))
	s.Equal([]string{"[alice] >> hi team\r\n"}, drain(carol.mailbox))
	s.Empty(drain(dave.mailbox))
}

func (s *RegistrySuite) TestBroadcastMissingRoom() {
	alice := s.connect("alice")
	s.ErrorIs(s.registry.Broadcast(alice, "void", formatChat("alice", "x")), merr.ErrRoomNotFound)
	s.Equal([]string{"Room void does not exist.\r\n"}, drain(alice.mailbox))
}

func (s *RegistrySuite) TestBroadcastDropsOnFullMailbox() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	carol := s.connect("carol")
	for _, sess := range []*Session{alice, bob, carol} {
		s.registry.Join("dev", sess)
	}
	for i := 0; i < DefaultMailboxSize; i++ {
		s.True(bob.mailbox.Offer(fmt.Sprintf("pending %d\r\n", i)))
	}

	s.NoError(s.registry.Broadcast(alice, "dev", formatChat("alice", "hello")))
	s.Equal(DefaultMailboxSize, bob.mailbox.Len())
	s.Equal([]string{"[alice] >> hello\r\n"}, drain(carol.mailbox))
	// 广播丢弃不通知发送方。
	s.Empty(drain(alice.mailbox))
}

func (s *RegistrySuite) TestSendPrivate() {
	alice := s.connect("alice")
	bob := s.connect("bob")

	s.NoError(s.registry.SendPrivate(alice, "bob", "hello"))
	s.Equal([]string{"[alice] >> hello\r\n"}, drain(bob.mailbox))
	s.Empty(drain(alice.mailbox))

	s.ErrorIs(s.registry.SendPrivate(alice, "nobody", "test"), merr.ErrUserNotFound)
	s.Equal([]string{"User nobody does not exist.\r\n"}, drain(alice.mailbox))

	guest := s.connect("")
	s.NoError(s.registry.SendPrivate(guest, "alice", "psst"))
	s.Equal([]string{"[guest-3] >> psst\r\n"}, drain(alice.mailbox))
}

func (s *RegistrySuite) TestSendPrivateQueueFull() {
	alice := s.connect("alice")
	bob := s.connect("bob")

	for i := 0; i < DefaultMailboxSize; i++ {
		s.NoError(s.registry.SendPrivate(alice, "bob", strconv.Itoa(i)))
	}
	err := s.registry.SendPrivate(alice, "bob", "one too many")
	s.ErrorIs(err, merr.ErrMailboxFull)
	s.True(merr.IsRetryableErr(err))

	s.Equal([]string{"The message queue for bob is full. Message not sent.\r\n"}, drain(alice.mailbox))

	entries := drain(bob.mailbox)
	s.Len(entries, DefaultMailboxSize)
	for i, entry := range entries {
		s.Equal("[alice] >> "+strconv.Itoa(i)+"\r\n", entry)
	}
}

func (s *RegistrySuite) TestQueueFullNoticeIsDroppedOnce() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	for i := 0; i < DefaultMailboxSize; i++ {
		alice.mailbox.Offer("x\r\n")
		bob.mailbox.Offer("y\r\n")
	}

	s.ErrorIs(s.registry.SendPrivate(alice, "bob", "hi"), merr.ErrMailboxFull)
	s.Equal(DefaultMailboxSize, alice.mailbox.Len())
	s.Equal(DefaultMailboxSize, bob.mailbox.Len())
}

func (s *RegistrySuite) TestReleaseLeavesEveryRoom() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	s.registry.Join("dev", alice)
	s.registry.Join("ops", alice)
	s.registry.Join("dev", bob)

	s.Equal([]string{"dev", "ops"}, s.registry.Release(alice))
	s.Equal(1, s.registry.Count())
	s.True(s.registry.IsNameAvailable("alice"))
	s.Equal([]string{"bob"}, s.registry.Members("dev"))
	s.False(s.registry.RoomExists("ops"))
	s.Equal(0, s.registry.RoomsFor(alice).Len())

	s.NoError(s.registry.Broadcast(bob, "dev", formatChat("bob", "anyone?")))
	s.Empty(drain(alice.mailbox))
}

func (s *RegistrySuite) TestDeregisterKeepsRoomMembership() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	s.registry.Join("dev", alice)
	s.registry.Join("dev", bob)

	s.NoError(s.registry.Deregister(alice))

	// Deregister 不清理房间：alice 仍会收到 dev 的广播。
	s.Equal([]string{"alice", "bob"}, s.registry.Members("dev"))
	s.NoError(s.registry.Broadcast(bob, "dev", formatChat("bob", "still there?")))
	s.Equal([]string{"[bob] >> still there?\r\n"}, drain(alice.mailbox))

	// Release 可以补做清理。
	s.Equal([]string{"dev"}, s.registry.Release(alice))
	s.Equal([]string{"bob"}, s.registry.Members("dev"))
}

func (s *RegistrySuite) TestSnapshot() {
	alice := s.connect("alice")
	guest := s.connect("")
	s.registry.Join("public", alice)
	s.registry.Join("public", guest)
	s.registry.Join("dev", alice)

	snapshot := s.registry.Snapshot()
	s.Equal(2, snapshot.Sessions)
	s.Equal([]string{"alice"}, snapshot.Names)
	s.Equal(map[string][]string{
		"public": {"alice", "guest-2"},
		"dev":    {"alice"},
	}, snapshot.Rooms)
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
