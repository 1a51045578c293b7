package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festmatch/festmatch-backend/internal/db"
	"github.com/festmatch/festmatch-backend/internal/models"
)

// Тесты в этом файле гоняются на настоящем Postgres: гарантии конкурентности
// живут в SQL (блокировки строк, guard по статусу) и моками недостижимы.
// Запуск: TEST_DATABASE_URL=postgres://... go test ./internal/repository/
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}

	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	require.NoError(t, db.RunMigrations(ctx, conn, "../../migrations"))
	_, err = conn.ExecContext(ctx, `
		TRUNCATE users, experiences, matches, user_balances, wallet_transactions,
		         ledger_audits, disputes, dispute_messages, notifications CASCADE
	`)
	require.NoError(t, err)
	return conn
}

func seedUser(t *testing.T, conn *sqlx.DB, balance float64) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	require.NoError(t, conn.Get(&id, `
		INSERT INTO users (email, username) VALUES ($1, $2) RETURNING id
	`, uuid.NewString()+"@test.local", "u-"+uuid.NewString()[:8]))
	if balance > 0 {
		_, err := NewLedgerRepository(conn).Credit(
			context.Background(), id, balance, models.TransactionTypeTopUp, nil, nil)
		require.NoError(t, err)
	}
	return id
}

func seedPendingMatch(t *testing.T, conn *sqlx.DB, hostID, requesterID uuid.UUID) uuid.UUID {
	t.Helper()
	var experienceID uuid.UUID
	require.NoError(t, conn.Get(&experienceID, `
		INSERT INTO experiences (host_id, type, price_per_person, capacity)
		VALUES ($1, $2, 10.00, 4) RETURNING id
	`, hostID, models.ExperienceTypePaid))

	var matchID uuid.UUID
	require.NoError(t, conn.Get(&matchID, `
		INSERT INTO matches (experience_id, host_id, requester_id, experience_type, status, participants, total_price)
		VALUES ($1, $2, $3, $4, $5, 1, 10.00) RETURNING id
	`, experienceID, hostID, requesterID, models.ExperienceTypePaid, models.MatchStatusPending))
	return matchID
}

func feeTxCount(t *testing.T, conn *sqlx.DB, matchID uuid.UUID, txType string) int {
	t.Helper()
	var count int
	require.NoError(t, conn.Get(&count, `
		SELECT COUNT(*) FROM wallet_transactions WHERE related_match_id = $1 AND type = $2
	`, matchID, txType))
	return count
}

func TestMatchRepository_Accept_ConcurrentSingleWinner(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	hostID := seedUser(t, conn, 10)
	requesterID := seedUser(t, conn, 10)
	matchID := seedPendingMatch(t, conn, hostID, requesterID)

	repo := NewMatchRepository(conn)
	fee := 1.50
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Accept(ctx, matchID, &fee)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
		conflicts++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	// Ровно одна пара списаний: по одному с каждой стороны.
	assert.Equal(t, 2, feeTxCount(t, conn, matchID, models.TransactionTypePlatformFee))

	match, err := repo.GetByID(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusAccepted, match.Status)
}

func TestMatchRepository_Cancel_RefundSurvivesConcurrentAccept(t *testing.T) {
	// Сценарий гонки: отменяющий прочитал pending, но к моменту блокировки
	// строки матч уже принят и комиссия списана. Возвратная политика
	// применяется по статусу под блокировкой, и возврат не теряется.
	conn := newTestDB(t)
	ctx := context.Background()
	hostID := seedUser(t, conn, 10)
	requesterID := seedUser(t, conn, 10)
	matchID := seedPendingMatch(t, conn, hostID, requesterID)

	repo := NewMatchRepository(conn)
	fee := 1.50
	_, _, err := repo.Accept(ctx, matchID, &fee)
	require.NoError(t, err)

	pct, amount := 50, 0.75
	cancelled, err := repo.Cancel(ctx, CancelParams{
		MatchID:          matchID,
		CancelledBy:      requesterID,
		RefundPercentage: &pct,
		RefundAmount:     &amount,
		RefundUserID:     &requesterID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.RefundPercentage)
	assert.Equal(t, 50, *cancelled.RefundPercentage)
	require.NotNil(t, cancelled.RefundAmount)
	assert.InDelta(t, 0.75, *cancelled.RefundAmount, 0.001)
	assert.Equal(t, 1, feeTxCount(t, conn, matchID, models.TransactionTypeRefund))

	balance, err := NewLedgerRepository(conn).GetBalance(ctx, requesterID)
	require.NoError(t, err)
	assert.InDelta(t, 10-1.50+0.75, balance.Balance, 0.001)
}

func TestMatchRepository_Cancel_PendingIgnoresRefundPolicy(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	hostID := seedUser(t, conn, 10)
	requesterID := seedUser(t, conn, 10)
	matchID := seedPendingMatch(t, conn, hostID, requesterID)

	pct, amount := 50, 0.75
	cancelled, err := NewMatchRepository(conn).Cancel(ctx, CancelParams{
		MatchID:          matchID,
		CancelledBy:      requesterID,
		RefundPercentage: &pct,
		RefundAmount:     &amount,
		RefundUserID:     &requesterID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.RefundPercentage)
	assert.Nil(t, cancelled.RefundAmount)
	assert.Equal(t, 0, feeTxCount(t, conn, matchID, models.TransactionTypeRefund))
}
