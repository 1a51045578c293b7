package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/festmatch/festmatch-backend/internal/models"
	"github.com/festmatch/festmatch-backend/internal/repository"
)

type mockMatchRepo struct {
	mock.Mock
}

func (m *mockMatchRepo) Create(ctx context.Context, match *models.Match) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *mockMatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *mockMatchRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Match, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Match), args.Error(1)
}

func (m *mockMatchRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Match, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]models.Match), args.Error(1)
}

func (m *mockMatchRepo) Accept(ctx context.Context, matchID uuid.UUID, fee *float64) (*models.Match, *repository.FeePair, error) {
	args := m.Called(ctx, matchID, fee)
	var match *models.Match
	if args.Get(0) != nil {
		match = args.Get(0).(*models.Match)
	}
	var pair *repository.FeePair
	if args.Get(1) != nil {
		pair = args.Get(1).(*repository.FeePair)
	}
	return match, pair, args.Error(2)
}

func (m *mockMatchRepo) Reject(ctx context.Context, matchID uuid.UUID, reason *string) (*models.Match, error) {
	args := m.Called(ctx, matchID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *mockMatchRepo) Cancel(ctx context.Context, p repository.CancelParams) (*models.Match, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *mockMatchRepo) Complete(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *mockMatchRepo) ExpireStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error) {
	args := m.Called(ctx, olderThan, reason)
	return args.Get(0).(int64), args.Error(1)
}

type mockExperienceCatalog struct {
	mock.Mock
}

func (m *mockExperienceCatalog) GetSummary(ctx context.Context, id uuid.UUID) (*models.ExperienceSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExperienceSummary), args.Error(1)
}

type mockUserReader struct {
	mock.Mock
}

func (m *mockUserReader) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockWalletChecker struct {
	mock.Mock
}

func (m *mockWalletChecker) CanOperate(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockWalletChecker) PlatformFee() float64 {
	args := m.Called()
	return args.Get(0).(float64)
}

func defaultPolicy() MatchPolicy {
	return MatchPolicy{
		ExpireAfter:                  48 * time.Hour,
		HostCancelRefundPct:          100,
		RequesterCancelRefundPct:     50,
		RequesterLateCancelRefundPct: 0,
		LateCancelWindow:             48 * time.Hour,
	}
}

func newMatchFixture() (*mockMatchRepo, *mockExperienceCatalog, *mockUserReader, *mockWalletChecker, *MatchService) {
	repo := new(mockMatchRepo)
	experiences := new(mockExperienceCatalog)
	users := new(mockUserReader)
	wallet := new(mockWalletChecker)
	svc := NewMatchService(repo, experiences, users, wallet, defaultPolicy())
	return repo, experiences, users, wallet, svc
}

func TestMatchService_Create_PaidExperience(t *testing.T) {
	repo, experiences, users, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, experienceID := uuid.New(), uuid.New(), uuid.New()

	price := 10.0
	experiences.On("GetSummary", ctx, experienceID).Return(&models.ExperienceSummary{
		ID: experienceID, HostID: hostID, Type: models.ExperienceTypePaid, PricePerPerson: &price, Capacity: 4,
	}, nil)
	users.On("GetByID", ctx, requesterID).Return(&models.User{ID: requesterID}, nil)
	wallet.On("CanOperate", ctx, requesterID).Return(true, nil)
	repo.On("Create", ctx, mock.MatchedBy(func(m *models.Match) bool {
		return m.Status == models.MatchStatusPending &&
			m.HostID == hostID &&
			m.ExperienceType == models.ExperienceTypePaid &&
			m.TotalPrice != nil && *m.TotalPrice == 20.0
	})).Return(nil)

	match, err := svc.Create(ctx, CreateMatchInput{
		RequesterID:  requesterID,
		ExperienceID: experienceID,
		Participants: 2,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.MatchStatusPending, match.Status)
	repo.AssertExpectations(t)
}

func TestMatchService_Create_ExchangeSkipsWalletCheck(t *testing.T) {
	repo, experiences, users, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, experienceID := uuid.New(), uuid.New(), uuid.New()

	experiences.On("GetSummary", ctx, experienceID).Return(&models.ExperienceSummary{
		ID: experienceID, HostID: hostID, Type: models.ExperienceTypeExchange, Capacity: 4,
	}, nil)
	users.On("GetByID", ctx, requesterID).Return(&models.User{ID: requesterID}, nil)
	repo.On("Create", ctx, mock.MatchedBy(func(m *models.Match) bool {
		return m.TotalPrice == nil
	})).Return(nil)

	_, err := svc.Create(ctx, CreateMatchInput{
		RequesterID:  requesterID,
		ExperienceID: experienceID,
		Participants: 1,
	})
	assert.NoError(t, err)
	wallet.AssertNotCalled(t, "CanOperate", mock.Anything, mock.Anything)
}

func TestMatchService_Create_SelfMatch(t *testing.T) {
	_, experiences, _, _, svc := newMatchFixture()
	ctx := context.Background()
	hostID, experienceID := uuid.New(), uuid.New()

	experiences.On("GetSummary", ctx, experienceID).Return(&models.ExperienceSummary{
		ID: experienceID, HostID: hostID, Type: models.ExperienceTypePaid,
	}, nil)

	_, err := svc.Create(ctx, CreateMatchInput{
		RequesterID:  hostID,
		ExperienceID: experienceID,
		Participants: 1,
	})
	assert.ErrorIs(t, err, ErrSelfMatch)
}

func TestMatchService_Create_BannedRequester(t *testing.T) {
	_, experiences, users, _, svc := newMatchFixture()
	ctx := context.Background()
	requesterID, experienceID := uuid.New(), uuid.New()
	bannedAt := time.Now()

	experiences.On("GetSummary", ctx, experienceID).Return(&models.ExperienceSummary{
		ID: experienceID, HostID: uuid.New(), Type: models.ExperienceTypePaid, Capacity: 2,
	}, nil)
	users.On("GetByID", ctx, requesterID).Return(&models.User{ID: requesterID, BannedAt: &bannedAt}, nil)

	_, err := svc.Create(ctx, CreateMatchInput{
		RequesterID:  requesterID,
		ExperienceID: experienceID,
		Participants: 1,
	})
	assert.ErrorIs(t, err, repository.ErrUserBanned)
}

func TestMatchService_Create_FundingFailed(t *testing.T) {
	_, experiences, users, wallet, svc := newMatchFixture()
	ctx := context.Background()
	requesterID, experienceID := uuid.New(), uuid.New()

	experiences.On("GetSummary", ctx, experienceID).Return(&models.ExperienceSummary{
		ID: experienceID, HostID: uuid.New(), Type: models.ExperienceTypePaid, Capacity: 2,
	}, nil)
	users.On("GetByID", ctx, requesterID).Return(&models.User{ID: requesterID}, nil)
	wallet.On("CanOperate", ctx, requesterID).Return(false, nil)

	_, err := svc.Create(ctx, CreateMatchInput{
		RequesterID:  requesterID,
		ExperienceID: experienceID,
		Participants: 1,
	})
	assert.ErrorIs(t, err, ErrFundingFailed)
}

func TestMatchService_Create_OverCapacity(t *testing.T) {
	_, experiences, _, _, svc := newMatchFixture()
	ctx := context.Background()
	experienceID := uuid.New()

	experiences.On("GetSummary", ctx, experienceID).Return(&models.ExperienceSummary{
		ID: experienceID, HostID: uuid.New(), Type: models.ExperienceTypePaid, Capacity: 3,
	}, nil)

	_, err := svc.Create(ctx, CreateMatchInput{
		RequesterID:  uuid.New(),
		ExperienceID: experienceID,
		Participants: 4,
	})
	assert.ErrorIs(t, err, ErrOverCapacity)
}

func TestMatchService_Accept_ChargesFeePair(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, matchID := uuid.New(), uuid.New()

	pending := &models.Match{ID: matchID, HostID: hostID, RequesterID: uuid.New(),
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusPending}
	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: pending.RequesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusAccepted}

	repo.On("GetByID", ctx, matchID).Return(pending, nil)
	wallet.On("PlatformFee").Return(1.50)
	repo.On("Accept", ctx, matchID, mock.MatchedBy(func(fee *float64) bool {
		return fee != nil && *fee == 1.50
	})).Return(accepted, &repository.FeePair{HostTxID: uuid.New(), RequesterTxID: uuid.New()}, nil)

	got, err := svc.Accept(ctx, matchID, hostID)
	assert.NoError(t, err)
	assert.Equal(t, models.MatchStatusAccepted, got.Status)
	repo.AssertExpectations(t)
}

func TestMatchService_Accept_ExchangeNoFee(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, matchID := uuid.New(), uuid.New()

	pending := &models.Match{ID: matchID, HostID: hostID, RequesterID: uuid.New(),
		ExperienceType: models.ExperienceTypeExchange, Status: models.MatchStatusPending}
	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: pending.RequesterID,
		ExperienceType: models.ExperienceTypeExchange, Status: models.MatchStatusAccepted}

	repo.On("GetByID", ctx, matchID).Return(pending, nil)
	repo.On("Accept", ctx, matchID, (*float64)(nil)).Return(accepted, nil, nil)

	_, err := svc.Accept(ctx, matchID, hostID)
	assert.NoError(t, err)
	wallet.AssertNotCalled(t, "PlatformFee")
}

func TestMatchService_Accept_FundingFailed(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, matchID := uuid.New(), uuid.New()

	pending := &models.Match{ID: matchID, HostID: hostID, RequesterID: uuid.New(),
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusPending}

	repo.On("GetByID", ctx, matchID).Return(pending, nil)
	wallet.On("PlatformFee").Return(1.50)
	repo.On("Accept", ctx, matchID, mock.Anything).Return(nil, nil, repository.ErrInsufficientFunds)

	_, err := svc.Accept(ctx, matchID, hostID)
	assert.ErrorIs(t, err, ErrFundingFailed)
}

func TestMatchService_Accept_NotHost(t *testing.T) {
	repo, _, _, _, svc := newMatchFixture()
	ctx := context.Background()
	matchID := uuid.New()

	pending := &models.Match{ID: matchID, HostID: uuid.New(), RequesterID: uuid.New(),
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusPending}
	repo.On("GetByID", ctx, matchID).Return(pending, nil)

	_, err := svc.Accept(ctx, matchID, uuid.New())
	assert.ErrorIs(t, err, ErrNotParticipant)
	repo.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything, mock.Anything)
}

func TestMatchService_Cancel_ByHostFullRefund(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()

	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusAccepted}
	cancelled := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusCancelled}

	repo.On("GetByID", ctx, matchID).Return(accepted, nil)
	wallet.On("PlatformFee").Return(1.50)
	repo.On("Cancel", ctx, mock.MatchedBy(func(p repository.CancelParams) bool {
		return p.CancelledBy == hostID &&
			p.RefundPercentage != nil && *p.RefundPercentage == 100 &&
			p.RefundAmount != nil && *p.RefundAmount == 1.50 &&
			p.RefundUserID != nil && *p.RefundUserID == requesterID
	})).Return(cancelled, nil)

	got, err := svc.Cancel(ctx, matchID, hostID)
	assert.NoError(t, err)
	assert.Equal(t, models.MatchStatusCancelled, got.Status)
	repo.AssertExpectations(t)
}

func TestMatchService_Cancel_ByRequesterHalfRefund(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()

	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusAccepted}

	repo.On("GetByID", ctx, matchID).Return(accepted, nil)
	wallet.On("PlatformFee").Return(1.50)
	repo.On("Cancel", ctx, mock.MatchedBy(func(p repository.CancelParams) bool {
		return p.RefundPercentage != nil && *p.RefundPercentage == 50 &&
			p.RefundAmount != nil && *p.RefundAmount == 0.75
	})).Return(accepted, nil)

	_, err := svc.Cancel(ctx, matchID, requesterID)
	assert.NoError(t, err)
}

func TestMatchService_Cancel_LateByRequesterNoRefund(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()
	soon := time.Now().Add(2 * time.Hour)

	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusAccepted, StartDate: &soon}

	repo.On("GetByID", ctx, matchID).Return(accepted, nil)
	wallet.On("PlatformFee").Return(1.50)
	repo.On("Cancel", ctx, mock.MatchedBy(func(p repository.CancelParams) bool {
		return p.RefundPercentage != nil && *p.RefundPercentage == 0 && p.RefundAmount == nil
	})).Return(accepted, nil)

	_, err := svc.Cancel(ctx, matchID, requesterID)
	assert.NoError(t, err)
}

func TestMatchService_Cancel_PendingStillCarriesRefundPolicy(t *testing.T) {
	// Между чтением статуса и блокировкой строки матч может быть принят
	// конкурентно. Политика возврата поэтому едет в репозиторий и для
	// pending-матча: применять её или нет, решается по статусу под
	// блокировкой, и возврат комиссии не теряется.
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()

	pending := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusPending}
	cancelled := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypePaid, Status: models.MatchStatusCancelled}

	repo.On("GetByID", ctx, matchID).Return(pending, nil)
	wallet.On("PlatformFee").Return(1.50)
	repo.On("Cancel", ctx, mock.MatchedBy(func(p repository.CancelParams) bool {
		return p.RefundPercentage != nil && *p.RefundPercentage == 50 &&
			p.RefundAmount != nil && *p.RefundAmount == 0.75 &&
			p.RefundUserID != nil && *p.RefundUserID == requesterID
	})).Return(cancelled, nil)

	_, err := svc.Cancel(ctx, matchID, requesterID)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestMatchService_Cancel_ExchangeNoRefundPolicy(t *testing.T) {
	repo, _, _, wallet, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()

	pending := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		ExperienceType: models.ExperienceTypeExchange, Status: models.MatchStatusPending}

	repo.On("GetByID", ctx, matchID).Return(pending, nil)
	repo.On("Cancel", ctx, mock.MatchedBy(func(p repository.CancelParams) bool {
		return p.RefundPercentage == nil && p.RefundAmount == nil
	})).Return(pending, nil)

	_, err := svc.Cancel(ctx, matchID, requesterID)
	assert.NoError(t, err)
	wallet.AssertNotCalled(t, "PlatformFee")
}

func TestMatchService_Complete_BeforeStartByRequester(t *testing.T) {
	repo, _, _, _, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()
	future := time.Now().Add(24 * time.Hour)

	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		Status: models.MatchStatusAccepted, StartDate: &future}
	repo.On("GetByID", ctx, matchID).Return(accepted, nil)

	_, err := svc.Complete(ctx, matchID, requesterID)
	assert.ErrorIs(t, err, ErrNotStarted)
	repo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestMatchService_Complete_HostOverride(t *testing.T) {
	repo, _, _, _, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()
	future := time.Now().Add(24 * time.Hour)

	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		Status: models.MatchStatusAccepted, StartDate: &future}
	completed := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		Status: models.MatchStatusCompleted, StartDate: &future}

	repo.On("GetByID", ctx, matchID).Return(accepted, nil)
	repo.On("Complete", ctx, matchID).Return(completed, nil)

	got, err := svc.Complete(ctx, matchID, hostID)
	assert.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
}

func TestMatchService_Complete_AfterStart(t *testing.T) {
	repo, _, _, _, svc := newMatchFixture()
	ctx := context.Background()
	hostID, requesterID, matchID := uuid.New(), uuid.New(), uuid.New()
	past := time.Now().Add(-2 * time.Hour)

	accepted := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		Status: models.MatchStatusAccepted, StartDate: &past}
	completed := &models.Match{ID: matchID, HostID: hostID, RequesterID: requesterID,
		Status: models.MatchStatusCompleted, StartDate: &past}

	repo.On("GetByID", ctx, matchID).Return(accepted, nil)
	repo.On("Complete", ctx, matchID).Return(completed, nil)

	_, err := svc.Complete(ctx, matchID, requesterID)
	assert.NoError(t, err)
}

func TestMatchService_ExpireStale(t *testing.T) {
	repo, _, _, _, svc := newMatchFixture()
	ctx := context.Background()

	repo.On("ExpireStale", ctx, 48*time.Hour, mock.Anything).Return(int64(3), nil)

	expired, err := svc.ExpireStale(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	repo.AssertExpectations(t)
}
