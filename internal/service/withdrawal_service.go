package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cricketledger/internal/config"
	"cricketledger/internal/model"
	"cricketledger/internal/repository"
	"cricketledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WithdrawalService struct {
	db             *gorm.DB
	cfg            *config.Config
	withdrawalRepo *repository.WithdrawalRepository
	walletRepo     *repository.WalletRepository
	txnRepo        *repository.TransactionRepository
}

func NewWithdrawalService(db *gorm.DB, cfg *config.Config) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		cfg:            cfg,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		walletRepo:     repository.NewWalletRepository(db),
		txnRepo:        repository.NewTransactionRepository(db),
	}
}

// Request 发起提现申请
// 提现只允许动奖金余额；申请时即扣减并记 WITHDRAWAL 流水，
// 扣减和申请单同一事务，驳回时原路退回
func (s *WithdrawalService) Request(ctx context.Context, userID int64, amount decimal.Decimal, address string) (*model.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, errors.New("提现金额必须大于0")
	}
	if address == "" {
		return nil, errors.New("收款地址不能为空")
	}

	withdrawal := &model.Withdrawal{
		WithdrawalNo: idgen.GenerateWithdrawalNo(),
		UserID:       userID,
		Amount:       amount,
		Currency:     s.cfg.Business.Currency,
		Address:      address,
		Status:       model.WithdrawalStatusPending,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if wallet.WinningBalance.LessThan(amount) {
			return repository.ErrInsufficientBalance
		}

		if err := s.walletRepo.AdjustBuckets(ctx, tx, userID,
			decimal.Zero, amount.Neg(), decimal.Zero); err != nil {
			return err
		}

		if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
			return err
		}

		now := time.Now()
		txn := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Type:          model.TxnTypeWithdrawal,
			Amount:        amount.Neg(),
			Currency:      withdrawal.Currency,
			RelatedType:   model.RelatedWithdrawal,
			RelatedID:     withdrawal.ID,
			Metadata:      model.TxnMetadata{ToAddress: address, Note: fmt.Sprintf("提现申请 %s", withdrawal.WithdrawalNo)},
			Status:        model.TxnStatusConfirmed,
			ProcessedAt:   &now,
		}
		return s.txnRepo.Create(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WithdrawalService] 提现申请: no=%s, userID=%d, amount=%s", withdrawal.WithdrawalNo, userID, amount)
	return withdrawal, nil
}

// Review 管理员审核提现
// 驳回时把金额退回奖金余额并记 REFUND 流水；
// 状态变更带旧状态条件，重复审核只有一次能生效
func (s *WithdrawalService) Review(ctx context.Context, withdrawalID int64, approve bool, adminID int64) (*model.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}

	if approve {
		err = s.withdrawalRepo.UpdateStatus(ctx, nil, withdrawalID,
			model.WithdrawalStatusPending, model.WithdrawalStatusApproved, adminID)
		if err != nil {
			return nil, err
		}
		withdrawal.Status = model.WithdrawalStatusApproved
		log.Printf("[WithdrawalService] 提现通过: no=%s, adminID=%d", withdrawal.WithdrawalNo, adminID)
		return withdrawal, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.withdrawalRepo.UpdateStatus(ctx, tx, withdrawalID,
			model.WithdrawalStatusPending, model.WithdrawalStatusRejected, adminID); err != nil {
			return err
		}

		if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, withdrawal.UserID); err != nil {
			return err
		}
		if err := s.walletRepo.AdjustBuckets(ctx, tx, withdrawal.UserID,
			decimal.Zero, withdrawal.Amount, decimal.Zero); err != nil {
			return err
		}

		now := time.Now()
		txn := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        withdrawal.UserID,
			Type:          model.TxnTypeRefund,
			Amount:        withdrawal.Amount,
			Currency:      withdrawal.Currency,
			RelatedType:   model.RelatedWithdrawal,
			RelatedID:     withdrawal.ID,
			Metadata:      model.TxnMetadata{Note: fmt.Sprintf("提现驳回退回 %s", withdrawal.WithdrawalNo)},
			Status:        model.TxnStatusConfirmed,
			ProcessedAt:   &now,
		}
		return s.txnRepo.Create(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	withdrawal.Status = model.WithdrawalStatusRejected
	log.Printf("[WithdrawalService] 提现驳回: no=%s, adminID=%d", withdrawal.WithdrawalNo, adminID)
	return withdrawal, nil
}
