package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/wallet-ledger/ledger"
	"github.com/warp/wallet-ledger/ledger/store"
)

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	logger := zaptest.NewLogger(t)

	first, err := Seed(ctx, s, Default, logger)
	require.NoError(t, err)
	assert.Equal(t, len(Default), first.Categories)

	second, err := Seed(ctx, s, Default, logger)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(Default))
}

func TestSeed_ResolvesEveryReservedSubcategory(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	_, err := Seed(ctx, s, Default, nil)
	require.NoError(t, err)

	sentinels, err := ledger.ResolveSentinels(ctx, s)
	require.NoError(t, err)

	in := sentinels[ledger.SentinelTransferIn]
	out := sentinels[ledger.SentinelTransferOut]
	assert.NotEqual(t, in.ID, out.ID, "transfer sides must be distinct subcategories")

	for _, sen := range []ledger.Sentinel{ledger.SentinelInitialBalance, ledger.SentinelWalletAdjustment} {
		cat, err := s.GetCategory(ctx, sentinels[sen].CategoryID)
		require.NoError(t, err)
		assert.Equal(t, ledger.TxAdjustment, cat.Type)
	}
}

func TestDefault_SubcategoryNamesUniqueWithinCategory(t *testing.T) {
	for _, g := range Default {
		seen := map[string]bool{}
		for _, name := range g.Subcategories {
			assert.False(t, seen[name], "%s/%s duplicated", g.Name, name)
			seen[name] = true
		}
	}
}
