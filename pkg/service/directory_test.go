package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"paybridge_back/models"
)

func TestResolveProvisionsLazily(t *testing.T) {
	repo := newFakeDirectoryRepo()
	ledger := &fakeLedger{}
	dir := NewDirectoryService(repo, ledger)

	ref := models.WalletReference{Provider: models.ProviderCardNetwork, ExternalID: "dir-lazy-1"}
	repo.addWallet(models.WalletReference{Provider: ref.Provider, ExternalID: ref.ExternalID, IsActive: true})

	id, err := dir.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "ewallet_cardnet_dir-lazy-1", id)
	require.Equal(t, 1, ledger.accountCreations())

	// Second resolve hits the cached mapping.
	again, err := dir.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, 1, ledger.accountCreations())
}

func TestConcurrentFirstUseProvisionsOnce(t *testing.T) {
	repo := newFakeDirectoryRepo()
	ledger := &fakeLedger{}
	dir := NewDirectoryService(repo, ledger)

	ref := models.WalletReference{Provider: models.ProviderInternational, ExternalID: "dir-race-1"}
	repo.addWallet(models.WalletReference{Provider: ref.Provider, ExternalID: ref.ExternalID, IsActive: true})

	const resolvers = 16
	results := make([]string, resolvers)
	errs := make([]error, resolvers)
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = dir.Resolve(context.Background(), ref)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, ledger.accountCreations(), "concurrent first use must provision exactly one account")
	for _, id := range results {
		require.Equal(t, results[0], id, "every resolver must observe the same account")
	}
}

func TestResolveRejectsUnknownAndDeactivatedWallets(t *testing.T) {
	repo := newFakeDirectoryRepo()
	ledger := &fakeLedger{}
	dir := NewDirectoryService(repo, ledger)

	_, err := dir.Resolve(context.Background(), models.WalletReference{
		Provider: models.ProviderPointOfSale, ExternalID: "dir-missing-1",
	})
	require.ErrorIs(t, err, models.ErrWalletNotFound)

	repo.addWallet(models.WalletReference{
		Provider: models.ProviderPointOfSale, ExternalID: "dir-inactive-1", IsActive: false,
	})
	_, err = dir.Resolve(context.Background(), models.WalletReference{
		Provider: models.ProviderPointOfSale, ExternalID: "dir-inactive-1",
	})
	require.ErrorIs(t, err, models.ErrWalletNotFound)
	require.Zero(t, ledger.accountCreations())
}
