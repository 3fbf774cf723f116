package accounttest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/benpsk/account-starter/internal/account"
	"github.com/benpsk/account-starter/internal/account/accounttest"
	"github.com/stretchr/testify/require"
)

func TestMemStoreAtomicRollbackKeepsConcurrentWrites(t *testing.T) {
	store := accounttest.NewMemStore()
	ctx := context.Background()
	errBoom := errors.New("boom")

	inside := make(chan struct{})
	release := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		failed <- store.Atomic(ctx, func(ctx context.Context) error {
			if _, err := store.CreateAccount(ctx, account.NewAccount{Email: "rolled@x.com"}); err != nil {
				return err
			}
			close(inside)
			<-release
			return errBoom
		})
	}()
	<-inside

	written := make(chan error, 1)
	go func() {
		_, err := store.CreateAccount(ctx, account.NewAccount{Email: "kept@x.com"})
		written <- err
	}()

	close(release)
	require.ErrorIs(t, <-failed, errBoom)
	require.NoError(t, <-written)

	_, err := store.FindByEmail(ctx, "rolled@x.com")
	require.ErrorIs(t, err, account.ErrNotFound)
	_, err = store.FindByEmail(ctx, "kept@x.com")
	require.NoError(t, err)
}

func TestMemStoreAtomicNestedJoinsOuter(t *testing.T) {
	store := accounttest.NewMemStore()
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := store.Atomic(ctx, func(ctx context.Context) error {
		return store.Atomic(ctx, func(ctx context.Context) error {
			if _, err := store.CreateAccount(ctx, account.NewAccount{Email: "nested@x.com"}); err != nil {
				return err
			}
			return errBoom
		})
	})
	require.ErrorIs(t, err, errBoom)

	_, err = store.FindByEmail(ctx, "nested@x.com")
	require.ErrorIs(t, err, account.ErrNotFound)
}
