package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/ledger"
)

func setupMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlxDB.Close()
	})
	return sqlxDB, mock
}

var txCols = []string{"id", "user_id", "type", "currency", "amount_requested", "status", "proof_url", "reject_reason", "product_id", "external_ref", "created_at", "resolved_at"}

func quote(s string) string { return regexp.QuoteMeta(s) }

func TestUsersUpsert(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now()

	mock.ExpectQuery(quote("INSERT INTO users (id, display_name, username)")).
		WithArgs(int64(7), "Ana", "ana").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "username", "balance_cup", "balance_saldo", "balance_usdt", "created_at"}).
			AddRow(7, "Ana", "ana", "1500.00", "0", "2.50", now))

	u, err := NewUsers(db).Upsert(context.Background(), domain.User{ID: 7, DisplayName: "Ana", Username: "ana"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.True(t, u.CUP.Equal(decimal.NewFromInt(1500)))
	assert.True(t, u.USDT.Equal(decimal.RequireFromString("2.5")))
}

func TestUsersGetNotFound(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(quote("FROM users WHERE id = $1")).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := NewUsers(db).Get(context.Background(), 9)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBalancesUnknownUserIsZero(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(quote("SELECT balance_cup, balance_saldo, balance_usdt FROM users WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cup", "balance_saldo", "balance_usdt"}))

	b, err := NewBalances(db).Balances(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, b.CUP.IsZero())
}

func expectLockedBalances(mock sqlmock.Sqlmock, userID int64, cup string) {
	mock.ExpectExec(quote(ensureUserSQL)).WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(quote("SELECT balance_cup, balance_saldo, balance_usdt FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cup", "balance_saldo", "balance_usdt"}).AddRow(cup, "0", "0"))
}

func TestApplyDebitCommitsWithPurchaseRecord(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now()

	mock.ExpectQuery(quote("SELECT balance_cup, balance_saldo, balance_usdt FROM users WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cup", "balance_saldo", "balance_usdt"}).AddRow("1000", "0", "0"))
	mock.ExpectBegin()
	expectLockedBalances(mock, 7, "1000")
	mock.ExpectExec(quote("UPDATE users SET balance_cup = $1 WHERE id = $2")).
		WithArgs("200", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote(ensureUserSQL)).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(quote("INSERT INTO transactions")).
		WithArgs(int64(7), "PURCHASE", "cup", "800", "completed", nil, nil, "ff-100", "555", sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(11, 7, "PURCHASE", "cup", "800", "completed", nil, nil, "ff-100", "555", now, nil))
	mock.ExpectCommit()

	txs := NewTransactions(db)
	productID, ref := "ff-100", "555"
	var created domain.Transaction
	l := ledger.New(NewBalances(db))
	b, err := l.Debit(context.Background(), 7, domain.CUP, decimal.NewFromInt(800), func(ctx context.Context) error {
		var err error
		created, err = txs.Create(ctx, domain.Transaction{
			UserID: 7, Kind: domain.KindPurchase, Currency: domain.CUP, Amount: decimal.NewFromInt(800),
			Status: domain.StatusCompleted, ProductID: &productID, ExternalRef: &ref, CreatedAt: now,
		})
		return err
	})
	require.NoError(t, err)
	assert.True(t, b.CUP.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, int64(11), created.ID)
	assert.Equal(t, "555", *created.ExternalRef)
}

func TestApplyInsufficientFundsRollsBack(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectBegin()
	expectLockedBalances(mock, 7, "500")
	mock.ExpectRollback()

	_, err := NewBalances(db).Apply(context.Background(), 7, domain.CUP, decimal.NewFromInt(-800), nil)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestApplyCommitFailureRollsBack(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectBegin()
	expectLockedBalances(mock, 7, "0")
	mock.ExpectExec(quote("UPDATE users SET balance_cup = $1 WHERE id = $2")).
		WithArgs("1500", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("resolve failed")
	_, err := NewBalances(db).Apply(context.Background(), 7, domain.CUP, decimal.NewFromInt(1500), func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestApplyRejectsUnknownCurrency(t *testing.T) {
	db, _ := setupMock(t)
	_, err := NewBalances(db).Apply(context.Background(), 7, domain.Currency("eur"), decimal.NewFromInt(1), nil)
	assert.True(t, domain.IsValidation(err))
}

func TestResolvePending(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now()
	reason := "ilegible"

	mock.ExpectQuery(quote("UPDATE transactions SET status = $2, reject_reason = $3, resolved_at = $4 WHERE id = $1 AND status = 'pending'")).
		WithArgs(int64(5), "rejected", "ilegible", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(5, 7, "DEPOSIT", "cup", "1500", "rejected", "proof", "ilegible", nil, nil, now, now))

	tx, err := NewTransactions(db).Resolve(context.Background(), 5, domain.StatusRejected, &reason, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, tx.Status)
	assert.Equal(t, "ilegible", *tx.RejectReason)
	assert.Equal(t, domain.KindDeposit, tx.Kind)
	require.NotNil(t, tx.ResolvedAt)
}

func TestResolveAlreadyFinal(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now()

	mock.ExpectQuery(quote("UPDATE transactions")).WithArgs(int64(5), "completed", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(txCols))
	mock.ExpectQuery(quote("FROM transactions WHERE id = $1")).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(5, 7, "DEPOSIT", "cup", "1500", "completed", "proof", nil, nil, nil, now, now))

	_, err := NewTransactions(db).Resolve(context.Background(), 5, domain.StatusCompleted, nil, now)
	require.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestResolveMissing(t *testing.T) {
	db, mock := setupMock(t)

	mock.ExpectQuery(quote("UPDATE transactions")).WillReturnRows(sqlmock.NewRows(txCols))
	mock.ExpectQuery(quote("FROM transactions WHERE id = $1")).WillReturnRows(sqlmock.NewRows(txCols))

	_, err := NewTransactions(db).Resolve(context.Background(), 99, domain.StatusCompleted, nil, time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveToPendingRefused(t *testing.T) {
	db, _ := setupMock(t)
	_, err := NewTransactions(db).Resolve(context.Background(), 1, domain.StatusPending, nil, time.Now())
	require.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestListPending(t *testing.T) {
	db, mock := setupMock(t)
	now := time.Now()

	mock.ExpectQuery(quote("WHERE type = $1 AND status = 'pending' ORDER BY id ASC LIMIT $2")).
		WithArgs("DEPOSIT", 10).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(1, 7, "DEPOSIT", "cup", "1500", "pending", "a", nil, nil, nil, now, nil).
			AddRow(2, 8, "DEPOSIT", "saldo", "2000", "pending", "b", nil, nil, nil, now, nil))

	txs, err := NewTransactions(db).ListPending(context.Background(), domain.KindDeposit, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.Saldo, txs[1].Currency)
	assert.Nil(t, txs[0].ResolvedAt)
}

func TestListByUserDefaultLimit(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(quote("WHERE user_id = $1 ORDER BY id DESC LIMIT $2")).
		WithArgs(int64(7), defaultListLimit).
		WillReturnRows(sqlmock.NewRows(txCols))

	txs, err := NewTransactions(db).ListByUser(context.Background(), 7, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestProducts(t *testing.T) {
	db, mock := setupMock(t)
	cols := []string{"id", "name", "kind", "price_cup", "price_saldo", "price_usdt", "external_product_id", "external_variation_id", "needs_zone", "active"}

	mock.ExpectQuery(quote("FROM products WHERE active ORDER BY name")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("ff-100", "Free Fire 100", "game", "800", "0", "0", "12", "34", true, true))
	mock.ExpectExec(quote("INSERT INTO products")).
		WithArgs("ff-100", "Free Fire 100", "game", "800", "0", "0", "12", "34", true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(quote("FROM products WHERE id = $1")).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	repo := NewProducts(db)
	ps, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	price, ok := ps[0].Price(domain.CUP)
	assert.True(t, ok)
	assert.Equal(t, "800", price.String())
	assert.True(t, ps[0].NeedsZone)
	assert.Equal(t, domain.ProductGame, ps[0].Kind)

	p := ps[0]
	p.Active = false
	require.NoError(t, repo.Upsert(context.Background(), p))

	_, err = repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := WithTx(context.Background(), db, func(ctx context.Context) error {
		return WithTx(ctx, db, func(context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
