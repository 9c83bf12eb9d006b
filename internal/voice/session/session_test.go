package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"voiceid/internal/voice/credential/persistence"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports/mocks"
	"voiceid/internal/voice/registration"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/audit/publisher"
	"voiceid/pkg/platform/audit/store/memory"
	"voiceid/pkg/platform/clock"
	"voiceid/pkg/testutil"
)

type SessionSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	sched     *clock.Manual
	biometric *mocks.MockBiometricProvider
	ledger    *mocks.MockLedgerService
	events    *memory.InMemoryStore
	records   *persistence.Memory
	manager   *Manager
	userID    id.UserID
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.sched = clock.NewManual(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	s.biometric = mocks.NewMockBiometricProvider(s.ctrl)
	s.ledger = mocks.NewMockLedgerService(s.ctrl)
	s.events = memory.NewInMemoryStore()
	s.userID = id.UserID(uuid.New())
	s.records = persistence.NewMemory()

	manager, err := NewManager(Deps{
		Persistence: s.records,
		Biometric:   s.biometric,
		Ledger:      s.ledger,
		Scheduler:   s.sched,
		Timings:     registration.DefaultTimings(),
		MaxPayload:  1024,
		Audit:       publisher.NewPublisher(s.events),
	})
	s.Require().NoError(err)
	s.manager = manager
}

func (s *SessionSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	s.NoError(s.manager.CloseAll(ctx))
	s.ctrl.Finish()
}

func (s *SessionSuite) open() *Session {
	sess, err := s.manager.Open(s.ctx, s.userID, "Firefox on Linux")
	s.Require().NoError(err)
	return sess
}

func (s *SessionSuite) TestOpenIsPerUser() {
	first := s.open()
	again := s.open()
	s.Same(first, again)

	other, err := s.manager.Open(s.ctx, id.UserID(uuid.New()), "")
	s.Require().NoError(err)
	s.NotSame(first, other)
	s.Equal(2, s.manager.Len())

	s.True(s.manager.Close(s.ctx, s.userID))
	s.False(s.manager.Close(s.ctx, s.userID))
	_, ok := s.manager.Get(s.userID)
	s.False(ok)
}

func (s *SessionSuite) TestWalletEventsAreAudited() {
	sess := s.open()

	_, err := sess.ConnectWallet(s.ctx, "not a wallet!")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	address, err := sess.ConnectWallet(s.ctx, "0xA11CE")
	s.Require().NoError(err)
	signer, ok := sess.Signer()
	s.True(ok)
	s.Equal(address, signer)

	sess.DisconnectWallet(s.ctx)
	sess.DisconnectWallet(s.ctx)

	events, err := s.events.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventWalletConnected), events[0].Action)
	s.Equal(string(audit.EventWalletDisconnected), events[1].Action)
}

func (s *SessionSuite) TestCaptureLockedWhileHolding() {
	sess := s.open()
	_, err := sess.ConnectWallet(s.ctx, "0xA11CE")
	s.Require().NoError(err)
	_, err = sess.Upload(s.ctx, "voice.wav", []byte("RIFF"))
	s.Require().NoError(err)

	s.Require().NoError(sess.Hold(s.ctx))

	_, err = sess.Upload(s.ctx, "other.wav", []byte("RIFF"))
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))
	err = sess.SetCaptureMode(s.ctx, models.CaptureSourceRecorded)
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))
	_, err = sess.PurgeCapture()
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))

	s.True(sess.Release(s.ctx))
	purged, err := sess.PurgeCapture()
	s.Require().NoError(err)
	s.True(purged)
}

func (s *SessionSuite) TestRecordingThroughPushedChunks() {
	sess := s.open()
	s.Require().NoError(sess.SetCaptureMode(s.ctx, models.CaptureSourceRecorded))

	err := sess.PushAudio([]byte("early"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "chunks need an open recording")

	started, err := sess.StartRecording(s.ctx)
	s.Require().NoError(err)
	s.True(started)
	s.Require().NoError(sess.PushAudio([]byte("abc")))
	s.Require().NoError(sess.PushAudio([]byte("def")))
	s.sched.Advance(2 * time.Second)

	captured, err := sess.StopRecording(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(captured)
	s.Equal([]byte("abcdef"), captured.Payload)
	s.Equal("Firefox on Linux", captured.DeviceLabel)
	s.Equal(2*time.Second, captured.Duration)
}

func (s *SessionSuite) TestAuditDefaultsToCurrentCapture() {
	sess := s.open()
	_, err := sess.Upload(s.ctx, "voice.wav", []byte("RIFF"))
	s.Require().NoError(err)

	s.biometric.EXPECT().Detect(gomock.Any(), []byte("RIFF")).
		Return(models.Detection{IsSynthetic: true, Score: 0.95}, nil)

	verdict, err := sess.Audit(s.ctx, nil)
	s.Require().NoError(err)
	s.True(verdict.IsSynthetic)
	last, ok := sess.LastVerdict()
	s.True(ok)
	s.Equal(verdict, last)
}

func (s *SessionSuite) TestNoticesAreBounded() {
	sess := s.open()
	for i := range maxNotices + 5 {
		sess.pushNotice(models.Notice{Kind: models.NoticeRevoked, Message: string(rune('a' + i))})
	}
	notices := sess.Notices()
	s.Len(notices, maxNotices)
	s.Equal(string(rune('a'+5)), notices[0].Message)
}

func (s *SessionSuite) TestCloseAllRefusesNewSessions() {
	s.open()
	s.manager.CloseAll(s.ctx)
	s.Equal(0, s.manager.Len())

	_, err := s.manager.Open(s.ctx, s.userID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

// ready opens a session with a signer and an uploaded capture.
func (s *SessionSuite) ready() *Session {
	sess := s.open()
	_, err := sess.ConnectWallet(s.ctx, "0xA11CE")
	s.Require().NoError(err)
	_, err = sess.Upload(s.ctx, "voice.wav", []byte("RIFF"))
	s.Require().NoError(err)
	return sess
}

func (s *SessionSuite) receipt() models.MintReceipt {
	return models.MintReceipt{
		TokenID:         "SOL-4821",
		VoiceID:         "voice-7f3a",
		ContractAddress: "VoiceReg1stry",
		FingerprintHash: "9c1e",
		TransactionHash: "5xTx",
		Network:         "Solana",
		MintDate:        s.sched.Now(),
	}
}

// blockCreateClone parks the run inside the provider call until unblock closes.
func (s *SessionSuite) blockCreateClone() (entered, unblock chan struct{}) {
	entered = make(chan struct{})
	unblock = make(chan struct{})
	s.biometric.EXPECT().CreateClone(gomock.Any(), "voice.wav").
		DoAndReturn(func(context.Context, string) (string, error) {
			close(entered)
			<-unblock
			return "clone-1", nil
		})
	s.ledger.EXPECT().RegisterVoice(gomock.Any(), gomock.Any()).Return(s.receipt(), nil)
	return entered, unblock
}

func (s *SessionSuite) TestCloseAllWaitsForConfirmedRun() {
	sess := s.ready()
	entered, unblock := s.blockCreateClone()

	s.Require().NoError(sess.Hold(s.ctx))
	s.sched.Advance(time.Second)
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- s.manager.CloseAll(s.ctx) }()
	s.Never(func() bool { return len(closed) > 0 }, 100*time.Millisecond, 10*time.Millisecond,
		"shutdown returned while a minting run was still executing")

	close(unblock)
	s.Require().NoError(<-closed)

	stored, err := s.records.List(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(stored, 1, "the minted credential reached persistence before shutdown finished")
	s.Equal(id.TokenID("SOL-4821"), stored[0].TokenID)
}

func (s *SessionSuite) TestCloseAllGivesUpAtDeadline() {
	sess := s.ready()
	entered, unblock := s.blockCreateClone()

	s.Require().NoError(sess.Hold(s.ctx))
	s.sched.Advance(time.Second)
	<-entered

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	err := s.manager.CloseAll(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)

	close(unblock)
}

func (s *SessionSuite) TestOpenDoesNotWaitOnOtherUsers() {
	stalled := newStallingPersistence(id.UserID(uuid.New()))
	manager, err := NewManager(Deps{
		Persistence: stalled,
		Biometric:   s.biometric,
		Ledger:      s.ledger,
		Scheduler:   s.sched,
	})
	s.Require().NoError(err)

	existing, err := manager.Open(s.ctx, s.userID, "")
	s.Require().NoError(err)

	opened := make(chan error, 1)
	go func() {
		_, err := manager.Open(s.ctx, stalled.user, "")
		opened <- err
	}()
	<-stalled.entered

	again := make(chan *Session, 1)
	go func() {
		sess, _ := manager.Open(s.ctx, s.userID, "")
		again <- sess
	}()
	select {
	case sess := <-again:
		s.Same(existing, sess)
	case <-time.After(time.Second):
		s.Fail("open for an existing user waited on another user's subscription")
	}

	close(stalled.unblock)
	s.NoError(<-opened)
	s.Equal(2, manager.Len())
	s.NoError(manager.CloseAll(s.ctx))
}

func (s *SessionSuite) TestConcurrentFirstOpensShareOneSession() {
	stalled := newStallingPersistence(s.userID)
	manager, err := NewManager(Deps{
		Persistence: stalled,
		Biometric:   s.biometric,
		Ledger:      s.ledger,
		Scheduler:   s.sched,
	})
	s.Require().NoError(err)

	results := make(chan *Session, 3)
	for range 3 {
		go func() {
			sess, openErr := manager.Open(s.ctx, s.userID, "")
			s.NoError(openErr)
			results <- sess
		}()
	}
	<-stalled.entered
	close(stalled.unblock)

	first := <-results
	s.NotNil(first)
	s.Same(first, <-results)
	s.Same(first, <-results)
	s.Equal(int32(1), stalled.subscribes.Load(), "one subscription per user")
	s.NoError(manager.CloseAll(s.ctx))
}

func TestLiveRecordingCannotDisplaceRegistrationCapture(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	biometric := mocks.NewMockBiometricProvider(ctrl)
	sched := clock.NewManual(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	manager, err := NewManager(Deps{
		Persistence: persistence.NewMemory(),
		Biometric:   biometric,
		Ledger:      mocks.NewMockLedgerService(ctrl),
		Scheduler:   sched,
		Timings:     registration.DefaultTimings(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		assert.NoError(t, manager.CloseAll(closeCtx))
	})

	sess, err := manager.Open(ctx, id.UserID(uuid.New()), "Firefox on Linux")
	require.NoError(t, err)
	_, err = sess.ConnectWallet(ctx, "0xA11CE")
	require.NoError(t, err)
	require.NoError(t, sess.SetCaptureMode(ctx, models.CaptureSourceRecorded))

	testutil.Given(t, "a recorded take and a second live recording", func(t *testing.T) {
		started, err := sess.StartRecording(ctx)
		require.NoError(t, err)
		require.True(t, started)
		require.NoError(t, sess.PushAudio([]byte("take-1")))
		first, err := sess.StopRecording(ctx)
		require.NoError(t, err)
		require.NotNil(t, first)

		started, err = sess.StartRecording(ctx)
		require.NoError(t, err)
		require.True(t, started)

		testutil.When(t, "registration is held", func(t *testing.T) {
			err := sess.Hold(ctx)

			testutil.Then(t, "it is refused and the take is untouched", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBusy))
				assert.Equal(t, models.StageIdle, sess.Registration().Stage)
				current, ok := sess.Capture()
				require.True(t, ok)
				assert.Equal(t, first.ID, current.ID)
			})
		})
	})

	testutil.Given(t, "a run that touches the recorder before its provider fails", func(t *testing.T) {
		require.NoError(t, sess.PushAudio([]byte("take-2")))
		second, err := sess.StopRecording(ctx)
		require.NoError(t, err)
		require.NotNil(t, second)

		biometric.EXPECT().CreateClone(gomock.Any(), gomock.Any()).
			DoAndReturn(func(callCtx context.Context, _ string) (string, error) {
				_, startErr := sess.StartRecording(callCtx)
				assert.True(t, dErrors.HasCode(startErr, dErrors.CodeBusy))
				stopped, stopErr := sess.StopRecording(callCtx)
				assert.NoError(t, stopErr)
				assert.Nil(t, stopped)
				return "", errors.New("connection refused")
			})

		testutil.When(t, "the gesture confirms and the run fails", func(t *testing.T) {
			require.NoError(t, sess.Hold(ctx))
			sched.Advance(time.Second)
			require.Eventually(t, func() bool {
				state := sess.Registration()
				return state.Stage == models.StageIdle && state.LastFailure != nil
			}, time.Second, 5*time.Millisecond)

			testutil.Then(t, "the run's own capture is kept for a retry", func(t *testing.T) {
				current, ok := sess.Capture()
				require.True(t, ok)
				assert.Equal(t, second.ID, current.ID)
				assert.Equal(t, dErrors.CodeProviderUnavailable, sess.Registration().LastFailure.Code)
			})
		})
	})
}

// stallingPersistence blocks Subscribe for one user until unblock closes.
type stallingPersistence struct {
	*persistence.Memory
	user       id.UserID
	entered    chan struct{}
	unblock    chan struct{}
	subscribes atomic.Int32
}

func newStallingPersistence(user id.UserID) *stallingPersistence {
	return &stallingPersistence{
		Memory:  persistence.NewMemory(),
		user:    user,
		entered: make(chan struct{}),
		unblock: make(chan struct{}),
	}
}

func (p *stallingPersistence) Subscribe(ctx context.Context, userID id.UserID, onChange func([]models.VoiceCredential)) (func(), error) {
	if userID == p.user {
		if p.subscribes.Add(1) == 1 {
			close(p.entered)
		}
		<-p.unblock
	}
	return p.Memory.Subscribe(ctx, userID, onChange)
}
