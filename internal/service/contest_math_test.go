package service

import (
	"testing"

	"cricketledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputePrizePool(t *testing.T) {
	// 报名费10，2人，抽佣10% -> 奖池20，抽佣2，可分配18
	pool, commission, distributable := ComputePrizePool(d("10"), 2, d("10"))

	assert.True(t, pool.Equal(d("20")), "pool=%s", pool)
	assert.True(t, commission.Equal(d("2")), "commission=%s", commission)
	assert.True(t, distributable.Equal(d("18")), "distributable=%s", distributable)
}

func TestComputePayouts(t *testing.T) {
	structure := []model.PrizeSlot{
		{Rank: 1, Pct: d("70")},
		{Rank: 2, Pct: d("30")},
	}

	items := ComputePayouts(d("18"), structure)
	require.Len(t, items, 2)

	assert.True(t, items[0].Amount.Equal(d("12.6")), "rank1=%s", items[0].Amount)
	assert.True(t, items[1].Amount.Equal(d("5.4")), "rank2=%s", items[1].Amount)
}

func TestComputePayoutsRoundsDown(t *testing.T) {
	// 100/3 是无限循环小数，截断到8位后三档合计必须 <= 可分配奖池
	third := d("100").Div(d("3"))
	structure := []model.PrizeSlot{
		{Rank: 1, Pct: third},
		{Rank: 2, Pct: third},
		{Rank: 3, Pct: third},
	}

	distributable := d("10")
	items := ComputePayouts(distributable, structure)

	total := decimal.Zero
	for _, item := range items {
		assert.Equal(t, int32(-8), maxExponent(item.Amount), "金额不超过8位小数")
		total = total.Add(item.Amount)
	}
	assert.True(t, total.LessThanOrEqual(distributable), "total=%s", total)
}

// maxExponent 返回不低于 -8 的指数，校验截断位数
func maxExponent(v decimal.Decimal) int32 {
	if v.Exponent() < -8 {
		return v.Exponent()
	}
	return -8
}

func TestComputePayoutsExactWhenPctSumsTo100(t *testing.T) {
	structure := []model.PrizeSlot{
		{Rank: 1, Pct: d("50")},
		{Rank: 2, Pct: d("30")},
		{Rank: 3, Pct: d("20")},
	}

	distributable := d("90")
	items := ComputePayouts(distributable, structure)

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	// 比例合计恰好100且金额整除时，派奖总额等于可分配奖池
	assert.True(t, total.Equal(distributable), "total=%s", total)
}

func TestComputePayoutsZeroEntries(t *testing.T) {
	pool, commission, distributable := ComputePrizePool(d("10"), 0, d("10"))
	assert.True(t, pool.IsZero())
	assert.True(t, commission.IsZero())
	assert.True(t, distributable.IsZero())

	items := ComputePayouts(distributable, []model.PrizeSlot{{Rank: 1, Pct: d("100")}})
	require.Len(t, items, 1)
	assert.True(t, items[0].Amount.IsZero())
}
