package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/globalchat/internal/dependencies/mocks"
	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/services/presence"
	"github.com/mcoot/globalchat/internal/testutil"
)

func (c *Channel) trackedSenders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lastAccepted)
}

type recordingFanout struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func (f *recordingFanout) Broadcast(msg model.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *recordingFanout) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Text
	}
	return out
}

// closingSessions drops the session between lookup and touch, as a
// disconnect racing a publish would
type closingSessions struct {
	*presence.Registry
}

func (c closingSessions) Touch(connID model.ConnID) error {
	_ = c.Deregister(connID)
	return c.Registry.Touch(connID)
}

type ChannelSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	presence *presence.Registry
	fanout   *recordingFanout
	channel  *Channel
}

func TestChannelSuite(t *testing.T) {
	suite.Run(t, new(ChannelSuite))
}

func (s *ChannelSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.presence = presence.New(s.clock, testutil.NopLogger(), nil, presence.DefaultConfig())
	s.fanout = &recordingFanout{}
	s.channel = New(s.presence, s.clock, testutil.NopLogger(), s.fanout, DefaultConfig())

	s.presence.Register("c-alice", "alice123", false)
	s.presence.Register("c-bob", "bob12345", false)
}

func (s *ChannelSuite) TestPublishAcceptsAndFansOut() {
	msg, err := s.channel.Publish("c-alice", "hello")
	s.Require().NoError(err)
	s.Require().NotNil(msg)

	s.Equal("alice123", msg.Sender)
	s.Equal("hello", msg.Text)
	s.Equal(s.clock.Now(), msg.SentAt)
	s.Equal(uint64(1), msg.Seq)
	s.Equal([]string{"hello"}, s.fanout.texts())
	s.Len(s.channel.History(), 1)
}

func (s *ChannelSuite) TestCooldownScenario() {
	_, err := s.channel.Publish("c-alice", "hello")
	s.Require().NoError(err)

	s.clock.Advance(1000 * time.Millisecond)
	msg, err := s.channel.Publish("c-alice", "world")
	s.Nil(msg)
	s.ErrorIs(err, model.ErrRateLimited)

	var rle *RateLimitError
	s.Require().True(errors.As(err, &rle))
	s.Equal(2000*time.Millisecond, rle.RetryAfter)

	s.clock.Advance(2100 * time.Millisecond)
	msg, err = s.channel.Publish("c-alice", "again")
	s.Require().NoError(err)
	s.Equal("again", msg.Text)

	s.Equal([]string{"hello", "again"}, s.fanout.texts())
}

func (s *ChannelSuite) TestCooldownBoundaryIsInclusive() {
	_, _ = s.channel.Publish("c-alice", "one")

	s.clock.Advance(3000 * time.Millisecond)
	_, err := s.channel.Publish("c-alice", "two")
	s.NoError(err)
}

func (s *ChannelSuite) TestRapidPublishesOnlyFirstAccepted() {
	for i := 0; i < 5; i++ {
		_, _ = s.channel.Publish("c-alice", fmt.Sprintf("m%d", i))
		s.clock.Advance(500 * time.Millisecond)
	}
	s.Equal([]string{"m0"}, s.fanout.texts())
}

func (s *ChannelSuite) TestSpacedPublishesAllAccepted() {
	for i := 0; i < 5; i++ {
		_, err := s.channel.Publish("c-alice", fmt.Sprintf("m%d", i))
		s.Require().NoError(err)
		s.clock.Advance(3000 * time.Millisecond)
	}
	s.Len(s.fanout.texts(), 5)
}

func (s *ChannelSuite) TestCooldownIsPerSender() {
	_, err := s.channel.Publish("c-alice", "a")
	s.Require().NoError(err)

	_, err = s.channel.Publish("c-bob", "b")
	s.Require().NoError(err)

	s.Equal([]string{"a", "b"}, s.fanout.texts())
}

func (s *ChannelSuite) TestCooldownIsSharedAcrossSessionsOfIdentity() {
	s.presence.Register("c-alice-2", "alice123", false)

	_, _ = s.channel.Publish("c-alice", "first")
	_, err := s.channel.Publish("c-alice-2", "second")
	s.ErrorIs(err, model.ErrRateLimited)
}

func (s *ChannelSuite) TestBlankTextIsNoOp() {
	for _, text := range []string{"", "   ", "\t\n"} {
		msg, err := s.channel.Publish("c-alice", text)
		s.NoError(err)
		s.Nil(msg)
	}
	s.Empty(s.fanout.texts())

	// Blank text does not start a cooldown
	_, err := s.channel.Publish("c-alice", "real")
	s.NoError(err)
}

func (s *ChannelSuite) TestUnauthenticatedConnectionRejected() {
	_, err := s.channel.Publish("c-nobody", "hi")
	s.ErrorIs(err, model.ErrNotAuthenticated)
	s.Empty(s.channel.History())
}

func (s *ChannelSuite) TestSessionGoneBeforeTouchRejected() {
	channel := New(closingSessions{s.presence}, s.clock, testutil.NopLogger(), s.fanout, DefaultConfig())

	msg, err := channel.Publish("c-alice", "hi")
	s.Nil(msg)
	s.ErrorIs(err, model.ErrNotAuthenticated)
	s.Empty(channel.History())
	s.Empty(s.fanout.texts())
	s.Equal(0, channel.trackedSenders())
}

func (s *ChannelSuite) TestSenderComesFromSession() {
	_ = s.presence.Deregister("c-bob")
	s.presence.Register("c-bob", "Guest0042", true)

	msg, err := s.channel.Publish("c-bob", "hi")
	s.Require().NoError(err)
	s.Equal("Guest0042", msg.Sender)
}

func (s *ChannelSuite) TestPublishTouchesPresence() {
	_ = s.presence.SetStatus("c-alice", model.StatusIdle)

	_, _ = s.channel.Publish("c-alice", "back")

	session, _ := s.presence.Session("c-alice")
	s.Equal(model.StatusOnline, session.Status)
}

func (s *ChannelSuite) TestHistoryLimit() {
	ch := New(s.presence, s.clock, testutil.NopLogger(), nil, Config{Cooldown: time.Second, HistoryLimit: 2})

	for _, text := range []string{"a", "b", "c"} {
		_, err := ch.Publish("c-alice", text)
		s.Require().NoError(err)
		s.clock.Advance(time.Second)
	}

	history := ch.History()
	s.Require().Len(history, 2)
	s.Equal("b", history[0].Text)
	s.Equal("c", history[1].Text)
	s.Equal(uint64(3), history[1].Seq)
}

func (s *ChannelSuite) TestHistoryReturnsCopy() {
	_, _ = s.channel.Publish("c-alice", "original")

	history := s.channel.History()
	history[0].Text = "mutated"

	s.Equal("original", s.channel.History()[0].Text)
}

func (s *ChannelSuite) TestConcurrentPublishesHaveTotalOrder() {
	const senders = 20
	for i := 0; i < senders; i++ {
		s.presence.Register(model.ConnID(fmt.Sprintf("c%d", i)), fmt.Sprintf("user%04d", i), false)
	}

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.channel.Publish(model.ConnID(fmt.Sprintf("c%d", i)), fmt.Sprintf("from %d", i))
		}(i)
	}
	wg.Wait()

	history := s.channel.History()
	s.Require().Len(history, senders)
	s.Equal(s.fanout.texts(), func() []string {
		out := make([]string, len(history))
		for i, m := range history {
			out[i] = m.Text
			s.Equal(uint64(i+1), m.Seq)
		}
		return out
	}())
}

// Prune

func (s *ChannelSuite) TestPruneDropsElapsedCooldowns() {
	_, _ = s.channel.Publish("c-alice", "a")
	s.clock.Advance(2 * time.Second)
	_, _ = s.channel.Publish("c-bob", "b")
	s.Equal(2, s.channel.trackedSenders())

	s.clock.Advance(time.Second)
	s.Equal(1, s.channel.Prune(s.clock.Now()))
	s.Equal(1, s.channel.trackedSenders())

	s.clock.Advance(2 * time.Second)
	s.Equal(1, s.channel.Prune(s.clock.Now()))
	s.Equal(0, s.channel.trackedSenders())
}

func (s *ChannelSuite) TestRunPrunesOnTicker() {
	_, _ = s.channel.Publish("c-alice", "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.channel.Run(ctx, time.Second)

	s.Eventually(func() bool {
		s.clock.Advance(time.Second)
		return s.channel.trackedSenders() == 0
	}, time.Second, 10*time.Millisecond)
}
