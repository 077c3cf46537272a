package service

import (
	"context"
	"fmt"
	"log"

	"cricketledger/internal/model"
	"cricketledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BucketDeltas 一次复合调整中三个余额桶各自的增量（可正可负）
type BucketDeltas struct {
	Deposit decimal.Decimal
	Winning decimal.Decimal
	Bonus   decimal.Decimal
}

type WalletService struct {
	db         *gorm.DB
	walletRepo *repository.WalletRepository
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		db:         db,
		walletRepo: repository.NewWalletRepository(db),
	}
}

// AtomicAdjust 原子复合调整钱包
// 三个增量在同一事务内一起生效或一起失败，
// 任何一个桶会变成负数时整体失败返回余额不足
func (s *WalletService) AtomicAdjust(ctx context.Context, userID int64, deltas BucketDeltas, reason string) (*model.Wallet, error) {
	var wallet *model.Wallet

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID); err != nil {
			return err
		}

		if err := s.walletRepo.AdjustBuckets(ctx, tx, userID, deltas.Deposit, deltas.Winning, deltas.Bonus); err != nil {
			return err
		}

		var updated model.Wallet
		if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&updated).Error; err != nil {
			return err
		}
		wallet = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WalletService] 余额调整: userID=%d, deposit=%s, winning=%s, bonus=%s, reason=%s",
		userID, deltas.Deposit, deltas.Winning, deltas.Bonus, reason)

	return wallet, nil
}

// TotalBalance 三桶余额之和
// 直接读最近一次已提交的数据库状态，资格判断不允许用缓存
func (s *WalletService) TotalBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.TotalBalance(), nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.walletRepo.GetOrCreate(ctx, userID)
}

// SplitEntryFee 按扣费优先级把报名费拆到三个桶
// 优先级固定为 充值余额 -> 赠送余额 -> 奖金余额
// 返回的三个金额均为非负数，调用方取负号后做扣减
func SplitEntryFee(wallet *model.Wallet, fee decimal.Decimal) (fromDeposit, fromBonus, fromWinning decimal.Decimal, err error) {
	if wallet.TotalBalance().LessThan(fee) {
		return decimal.Zero, decimal.Zero, decimal.Zero, repository.ErrInsufficientBalance
	}

	remaining := fee

	fromDeposit = decimal.Min(wallet.DepositBalance, remaining)
	remaining = remaining.Sub(fromDeposit)

	fromBonus = decimal.Min(wallet.BonusBalance, remaining)
	remaining = remaining.Sub(fromBonus)

	fromWinning = decimal.Min(wallet.WinningBalance, remaining)
	remaining = remaining.Sub(fromWinning)

	if !remaining.IsZero() {
		// TotalBalance 检查通过后不可能走到这里
		return decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("扣费拆分异常: fee=%s, 剩余=%s", fee, remaining)
	}

	return fromDeposit, fromBonus, fromWinning, nil
}
