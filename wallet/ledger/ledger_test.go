package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/walletbot/wallet/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newLedger(t *testing.T, seed map[int64]domain.Balances) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	for id, b := range seed {
		store.Seed(id, b)
	}
	return New(store), store
}

func TestCreditAndDebit(t *testing.T) {
	l, _ := newLedger(t, nil)
	ctx := context.Background()

	b, err := l.Credit(ctx, 1, domain.CUP, d(1500), nil)
	require.NoError(t, err)
	assert.True(t, b.CUP.Equal(d(1500)))

	b, err = l.Debit(ctx, 1, domain.CUP, d(500), nil)
	require.NoError(t, err)
	assert.True(t, b.CUP.Equal(d(1000)))
	assert.True(t, b.Saldo.IsZero())
}

func TestDebitInsufficientFunds(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {CUP: d(500)}})
	ctx := context.Background()

	_, err := l.Debit(ctx, 1, domain.CUP, d(800), nil)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	b, err := l.Balance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, b.CUP.Equal(d(500)))
}

func TestRejectsInvalidInput(t *testing.T) {
	l, _ := newLedger(t, nil)
	ctx := context.Background()

	_, err := l.Credit(ctx, 1, domain.CUP, d(0), nil)
	assert.True(t, domain.IsValidation(err))

	_, err = l.Credit(ctx, 1, domain.CUP, d(-5), nil)
	assert.True(t, domain.IsValidation(err))

	_, err = l.Debit(ctx, 1, domain.Currency("eur"), d(5), nil)
	assert.True(t, domain.IsValidation(err))
}

func TestCommitFailureAbortsMutation(t *testing.T) {
	l, _ := newLedger(t, nil)
	ctx := context.Background()
	boom := errors.New("status update failed")

	_, err := l.Credit(ctx, 1, domain.Saldo, d(700), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	b, err := l.Balance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, b.Saldo.IsZero())
}

func TestDebitAfterSkipsDebitWhenConfirmFails(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {USDT: d(10)}})
	ctx := context.Background()
	upstream := &domain.UpstreamError{Op: "order-create", Message: "out of stock"}

	committed := false
	_, err := l.DebitAfter(ctx, 1, domain.USDT, d(4),
		func(context.Context) error { return upstream },
		func(context.Context) error { committed = true; return nil },
	)
	require.ErrorIs(t, err, upstream)
	assert.False(t, committed)

	b, _ := l.Balance(ctx, 1)
	assert.True(t, b.USDT.Equal(d(10)))
}

func TestDebitAfterDoesNotConfirmWithoutFunds(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {CUP: d(500)}})

	called := false
	_, err := l.DebitAfter(context.Background(), 1, domain.CUP, d(800),
		func(context.Context) error { called = true; return nil }, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.False(t, called, "external call must not happen when the buyer cannot pay")
}

func TestDebitAfterDebitsOnceOnSuccess(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {CUP: d(2000)}})

	b, err := l.DebitAfter(context.Background(), 1, domain.CUP, d(800),
		func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	assert.True(t, b.CUP.Equal(d(1200)))
}

func TestConcurrentPurchasesCannotOverspend(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {CUP: d(1000)}})
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		confirmed atomic.Int32
		succeeded atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.DebitAfter(ctx, 1, domain.CUP, d(300), func(context.Context) error {
				confirmed.Add(1)
				time.Sleep(time.Millisecond)
				return nil
			}, nil)
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded.Load())
	assert.Equal(t, int32(3), confirmed.Load())
	b, _ := l.Balance(ctx, 1)
	assert.True(t, b.CUP.Equal(d(100)))
}

func TestUsersDoNotInterfere(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {CUP: d(100)}, 2: {CUP: d(100)}})
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = l.DebitAfter(ctx, 1, domain.CUP, d(50), func(context.Context) error {
			close(started)
			<-release
			return nil
		}, nil)
	}()
	<-started

	// user 2 proceeds while user 1 waits on an external call
	done := make(chan error, 1)
	go func() {
		_, err := l.Credit(ctx, 2, domain.CUP, d(25), nil)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("credit for another user was blocked")
	}
	close(release)

	require.Eventually(t, func() bool {
		b, _ := l.Balance(ctx, 1)
		return b.CUP.Equal(d(50))
	}, time.Second, time.Millisecond)
	b2, _ := l.Balance(ctx, 2)
	assert.True(t, b2.CUP.Equal(d(125)))
}

func TestCheck(t *testing.T) {
	l, _ := newLedger(t, map[int64]domain.Balances{1: {CUP: d(500)}})
	ctx := context.Background()

	assert.ErrorIs(t, l.Check(ctx, 1, domain.CUP, d(800)), domain.ErrInsufficientFunds)
	assert.NoError(t, l.Check(ctx, 1, domain.CUP, d(500)))
}
