package service

import (
	"testing"

	"cricketledger/internal/model"
	"cricketledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(deposit, winning, bonus string) *model.Wallet {
	return &model.Wallet{
		UserID:         1,
		DepositBalance: d(deposit),
		WinningBalance: d(winning),
		BonusBalance:   d(bonus),
	}
}

func TestSplitEntryFeeDepositCoversAll(t *testing.T) {
	w := newWallet("100", "50", "20")

	fromDeposit, fromBonus, fromWinning, err := SplitEntryFee(w, d("10"))
	require.NoError(t, err)

	assert.True(t, fromDeposit.Equal(d("10")))
	assert.True(t, fromBonus.IsZero())
	assert.True(t, fromWinning.IsZero())
}

func TestSplitEntryFeeSpillsToBonus(t *testing.T) {
	w := newWallet("6", "50", "20")

	fromDeposit, fromBonus, fromWinning, err := SplitEntryFee(w, d("10"))
	require.NoError(t, err)

	// 充值余额不足时先吃赠送余额，奖金余额最后动
	assert.True(t, fromDeposit.Equal(d("6")))
	assert.True(t, fromBonus.Equal(d("4")))
	assert.True(t, fromWinning.IsZero())
}

func TestSplitEntryFeeSpillsToWinning(t *testing.T) {
	w := newWallet("3", "50", "2")

	fromDeposit, fromBonus, fromWinning, err := SplitEntryFee(w, d("10"))
	require.NoError(t, err)

	assert.True(t, fromDeposit.Equal(d("3")))
	assert.True(t, fromBonus.Equal(d("2")))
	assert.True(t, fromWinning.Equal(d("5")))
}

func TestSplitEntryFeeExactTotal(t *testing.T) {
	w := newWallet("3", "5", "2")

	fromDeposit, fromBonus, fromWinning, err := SplitEntryFee(w, d("10"))
	require.NoError(t, err)

	assert.True(t, fromDeposit.Add(fromBonus).Add(fromWinning).Equal(d("10")))
	assert.True(t, fromWinning.Equal(d("5")))
}

func TestSplitEntryFeeInsufficient(t *testing.T) {
	w := newWallet("3", "4", "2")

	_, _, _, err := SplitEntryFee(w, d("10"))
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
}

func TestSplitEntryFeeFractionalAmounts(t *testing.T) {
	w := newWallet("0.5", "10", "0.25")

	fromDeposit, fromBonus, fromWinning, err := SplitEntryFee(w, d("1"))
	require.NoError(t, err)

	assert.True(t, fromDeposit.Equal(d("0.5")))
	assert.True(t, fromBonus.Equal(d("0.25")))
	assert.True(t, fromWinning.Equal(d("0.25")))
}
