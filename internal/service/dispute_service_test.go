package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/repository"
)

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetForMatch(ctx context.Context, matchID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) MarkUnderReview(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) Resolve(ctx context.Context, p repository.ResolveParams) (*repository.ResolveResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ResolveResult), args.Error(1)
}

func (m *mockDisputeRepo) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockDisputeRepo) ListMessages(ctx context.Context, disputeID uuid.UUID, limit, offset int) ([]models.DisputeMessage, error) {
	args := m.Called(ctx, disputeID, limit, offset)
	return args.Get(0).([]models.DisputeMessage), args.Error(1)
}

type mockMatchReader struct {
	mock.Mock
}

func (m *mockMatchReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func newDisputeFixture() (*mockDisputeRepo, *mockMatchReader, *DisputeService) {
	repo := new(mockDisputeRepo)
	matches := new(mockMatchReader)
	svc := NewDisputeService(repo, matches, DisputePolicy{OpenWindow: 14 * 24 * time.Hour})
	return repo, matches, svc
}

func TestDisputeService_Open_Success(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()

	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: hostID, RequesterID: requesterID, Status: models.MatchStatusAccepted,
	}, nil)
	repo.On("Create", ctx, mock.MatchedBy(func(d *models.Dispute) bool {
		return d.MatchID == matchID && d.OpenerID == requesterID && d.Status == models.DisputeStatusOpen
	})).Return(nil)

	dispute, err := svc.Open(ctx, OpenDisputeInput{
		MatchID:  matchID,
		OpenerID: requesterID,
		Reason:   "хост не явился",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	repo.AssertExpectations(t)
}

func TestDisputeService_Open_NotParticipant(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	matchID := uuid.New()

	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: uuid.New(), Status: models.MatchStatusAccepted,
	}, nil)

	_, err := svc.Open(ctx, OpenDisputeInput{MatchID: matchID, OpenerID: uuid.New(), Reason: "причина"})
	assert.ErrorIs(t, err, ErrNotParticipant)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDisputeService_Open_PendingNotDisputable(t *testing.T) {
	_, matches, svc := newDisputeFixture()
	ctx := context.Background()
	requesterID, matchID := uuid.New(), uuid.New()

	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: requesterID, Status: models.MatchStatusPending,
	}, nil)

	_, err := svc.Open(ctx, OpenDisputeInput{MatchID: matchID, OpenerID: requesterID, Reason: "причина"})
	assert.ErrorIs(t, err, ErrNotDisputable)
}

func TestDisputeService_Open_WindowClosed(t *testing.T) {
	_, matches, svc := newDisputeFixture()
	ctx := context.Background()
	requesterID, matchID := uuid.New(), uuid.New()

	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: requesterID,
		Status: models.MatchStatusCompleted, UpdatedAt: time.Now().Add(-15 * 24 * time.Hour),
	}, nil)

	_, err := svc.Open(ctx, OpenDisputeInput{MatchID: matchID, OpenerID: requesterID, Reason: "причина"})
	assert.ErrorIs(t, err, ErrDisputeWindow)
}

func TestDisputeService_Open_Duplicate(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	requesterID, matchID := uuid.New(), uuid.New()

	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: requesterID, Status: models.MatchStatusAccepted,
	}, nil)
	repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateDispute)

	_, err := svc.Open(ctx, OpenDisputeInput{MatchID: matchID, OpenerID: requesterID, Reason: "причина"})
	assert.ErrorIs(t, err, repository.ErrDuplicateDispute)
}

func TestDisputeService_Resolve_PartialRefund(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	hostID, requesterID := uuid.New(), uuid.New()
	matchID, disputeID, adminID := uuid.New(), uuid.New(), uuid.New()
	total := 40.0

	resolution, err := models.NewPartialRefundResolution(25)
	require.NoError(t, err)

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusUnderReview,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: hostID, RequesterID: requesterID,
		Status: models.MatchStatusCompleted, TotalPrice: &total,
	}, nil)
	repo.On("Resolve", ctx, mock.MatchedBy(func(p repository.ResolveParams) bool {
		return p.ResolvedBy == adminID &&
			p.RefundAmount != nil && *p.RefundAmount == 10.0 &&
			p.RefundUserID != nil && *p.RefundUserID == requesterID &&
			p.StrikeUserID == nil && p.BanUserID == nil
	})).Return(&repository.ResolveResult{
		Dispute: &models.Dispute{ID: disputeID, Status: models.DisputeStatusResolved},
	}, nil)

	dispute, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:  disputeID,
		ResolvedBy: adminID,
		Resolution: resolution,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, dispute.Status)
	repo.AssertExpectations(t)
}

func TestDisputeService_Resolve_RefundWithoutPaidAmount(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	matchID, disputeID := uuid.New(), uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusOpen,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: uuid.New(),
		Status: models.MatchStatusCancelled,
	}, nil)

	_, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:  disputeID,
		ResolvedBy: uuid.New(),
		Resolution: models.NewRefundResolution(),
	})
	assert.ErrorIs(t, err, ErrNoPaidAmount)
	repo.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestDisputeService_Resolve_StrikeHost(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	hostID, requesterID := uuid.New(), uuid.New()
	matchID, disputeID := uuid.New(), uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusUnderReview,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: hostID, RequesterID: requesterID, Status: models.MatchStatusCompleted,
	}, nil)
	repo.On("Resolve", ctx, mock.MatchedBy(func(p repository.ResolveParams) bool {
		return p.StrikeUserID != nil && *p.StrikeUserID == hostID && p.RefundAmount == nil
	})).Return(&repository.ResolveResult{
		Dispute:       &models.Dispute{ID: disputeID, Status: models.DisputeStatusResolved},
		PenalizedUser: &models.User{ID: hostID, Strikes: 3, BannedAt: timePtr(time.Now())},
	}, nil)

	_, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:    disputeID,
		ResolvedBy:   uuid.New(),
		Resolution:   models.NewNoRefundResolution(),
		AdminAction:  models.AdminActionStrike,
		ActionTarget: &hostID,
	})
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestDisputeService_Resolve_StrikeNeedsTarget(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	matchID, disputeID := uuid.New(), uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusOpen,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: uuid.New(), Status: models.MatchStatusCompleted,
	}, nil)

	_, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:   disputeID,
		ResolvedBy:  uuid.New(),
		Resolution:  models.NewNoRefundResolution(),
		AdminAction: models.AdminActionStrike,
	})
	assert.ErrorIs(t, err, ErrActionNeedsTarget)
}

func TestDisputeService_Resolve_TargetNotParticipant(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	matchID, disputeID := uuid.New(), uuid.New()
	outsider := uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusOpen,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: uuid.New(), Status: models.MatchStatusCompleted,
	}, nil)

	_, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:    disputeID,
		ResolvedBy:   uuid.New(),
		Resolution:   models.NewNoRefundResolution(),
		AdminAction:  models.AdminActionBan,
		ActionTarget: &outsider,
	})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDisputeService_Resolve_AlreadyResolved(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	matchID, disputeID := uuid.New(), uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusUnderReview,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: uuid.New(), RequesterID: uuid.New(), Status: models.MatchStatusCompleted,
	}, nil)
	repo.On("Resolve", ctx, mock.Anything).Return(nil, repository.ErrAlreadyResolved)

	_, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:  disputeID,
		ResolvedBy: uuid.New(),
		Resolution: models.NewNoRefundResolution(),
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyResolved)
}

func TestDisputeService_Resolve_UnknownAction(t *testing.T) {
	repo, _, svc := newDisputeFixture()
	ctx := context.Background()

	_, err := svc.Resolve(ctx, ResolveInput{
		DisputeID:   uuid.New(),
		ResolvedBy:  uuid.New(),
		Resolution:  models.NewNoRefundResolution(),
		AdminAction: "fire",
	})
	assert.ErrorIs(t, err, ErrInvalidAction)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestDisputeService_AddMessage_TerminalDispute(t *testing.T) {
	repo, _, svc := newDisputeFixture()
	ctx := context.Background()
	disputeID := uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: uuid.New(), Status: models.DisputeStatusResolved,
	}, nil)

	_, err := svc.AddMessage(ctx, disputeID, uuid.New(), "текст", false)
	assert.ErrorIs(t, err, repository.ErrAlreadyResolved)
}

func TestDisputeService_AddMessage_Success(t *testing.T) {
	repo, matches, svc := newDisputeFixture()
	ctx := context.Background()
	hostID, requesterID := uuid.New(), uuid.New()
	matchID, disputeID := uuid.New(), uuid.New()

	repo.On("GetByID", ctx, disputeID).Return(&models.Dispute{
		ID: disputeID, MatchID: matchID, Status: models.DisputeStatusOpen,
	}, nil)
	matches.On("GetByID", ctx, matchID).Return(&models.Match{
		ID: matchID, HostID: hostID, RequesterID: requesterID, Status: models.MatchStatusAccepted,
	}, nil)
	repo.On("AddMessage", ctx, mock.MatchedBy(func(msg *models.DisputeMessage) bool {
		return msg.DisputeID == disputeID && msg.SenderID == hostID && msg.Body == "встретимся у сцены"
	})).Return(nil)

	msg, err := svc.AddMessage(ctx, disputeID, hostID, "встретимся у сцены", false)
	assert.NoError(t, err)
	assert.Equal(t, hostID, msg.SenderID)
	repo.AssertExpectations(t)
}

func timePtr(t time.Time) *time.Time { return &t }
