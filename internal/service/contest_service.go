package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cricketledger/internal/config"
	"cricketledger/internal/infrastructure/lock"
	"cricketledger/internal/model"
	"cricketledger/internal/repository"
	"cricketledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 业务错误：预期之内的失败结果，调用方据此返回对应错误码
var (
	ErrContestNotOpen = errors.New("比赛未开放报名")
	ErrContestFull    = errors.New("比赛人数已满")
	ErrAlreadySettled = errors.New("比赛已结算")
)

type ContestService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	contestRepo *repository.ContestRepository
	entryRepo   *repository.EntryRepository
	walletRepo  *repository.WalletRepository
	txnRepo     *repository.TransactionRepository
}

func NewContestService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ContestService {
	return &ContestService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		contestRepo: repository.NewContestRepository(db),
		entryRepo:   repository.NewEntryRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
		txnRepo:     repository.NewTransactionRepository(db),
	}
}

// ============================================================================
// 奖金计算（纯函数，便于单独验证数值口径）
// ============================================================================
//
// 【数值口径】全部使用定点十进制，禁止浮点；
// 百分比运算后统一 RoundDown 截断到 8 位小数。
// 截断而不是四舍五入，保证派奖总额永远不会超过可分配奖池。

// ComputePrizePool 计算奖池、抽佣、可分配奖池
func ComputePrizePool(entryFee decimal.Decimal, numEntries int64, commissionPct decimal.Decimal) (pool, commission, distributable decimal.Decimal) {
	pool = entryFee.Mul(decimal.NewFromInt(numEntries))
	commission = pool.Mul(commissionPct).Div(decimal.NewFromInt(100)).RoundDown(8)
	distributable = pool.Sub(commission)
	return pool, commission, distributable
}

// PayoutPlanItem 一档奖金的计算结果
type PayoutPlanItem struct {
	Rank   int             `json:"rank"`
	Pct    decimal.Decimal `json:"pct"`
	Amount decimal.Decimal `json:"amount"`
}

// ComputePayouts 按奖金结构逐档计算派奖金额
func ComputePayouts(distributable decimal.Decimal, prizeStructure []model.PrizeSlot) []PayoutPlanItem {
	items := make([]PayoutPlanItem, 0, len(prizeStructure))
	for _, slot := range prizeStructure {
		amount := distributable.Mul(slot.Pct).Div(decimal.NewFromInt(100)).RoundDown(8)
		items = append(items, PayoutPlanItem{
			Rank:   slot.Rank,
			Pct:    slot.Pct,
			Amount: amount,
		})
	}
	return items
}

// ============================================================================
// 比赛生命周期：创建 / 开放 / 截止
// ============================================================================

type CreateContestRequest struct {
	MatchID        int64
	Title          string
	EntryFee       decimal.Decimal
	MaxPlayers     *int
	PrizeStructure []model.PrizeSlot
	CommissionPct  *decimal.Decimal // 为空使用平台默认抽佣
	AdminID        int64
}

func (s *ContestService) Create(ctx context.Context, req *CreateContestRequest) (*model.Contest, error) {
	if req.EntryFee.IsNegative() {
		return nil, errors.New("报名费不能为负数")
	}
	totalPct := decimal.Zero
	for _, slot := range req.PrizeStructure {
		if slot.Rank <= 0 || slot.Pct.IsNegative() {
			return nil, errors.New("奖金结构不合法")
		}
		totalPct = totalPct.Add(slot.Pct)
	}
	if totalPct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.New("奖金比例合计不能超过100")
	}

	commissionPct, err := decimal.NewFromString(s.cfg.Business.DefaultCommissionPct)
	if err != nil {
		return nil, fmt.Errorf("默认抽佣配置不合法: %w", err)
	}
	if req.CommissionPct != nil {
		commissionPct = *req.CommissionPct
	}

	contest := &model.Contest{
		MatchID:        req.MatchID,
		Title:          req.Title,
		EntryFee:       req.EntryFee,
		Currency:       s.cfg.Business.Currency,
		MaxPlayers:     req.MaxPlayers,
		PrizeStructure: req.PrizeStructure,
		CommissionPct:  commissionPct,
		Status:         model.ContestStatusScheduled,
		CreatedBy:      req.AdminID,
	}

	// 短加入码只取雪花ID的低位，存在小概率碰撞，撞上唯一索引就换码重试
	for attempt := 0; ; attempt++ {
		contest.Code = idgen.GenerateContestCode()
		err := s.contestRepo.Create(ctx, contest)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrContestCodeTaken) && attempt < 2 {
			continue
		}
		return nil, err
	}

	log.Printf("[ContestService] 创建比赛: id=%d, code=%s, fee=%s", contest.ID, contest.Code, contest.EntryFee)
	return contest, nil
}

// Open 开放报名（SCHEDULED -> OPEN）
func (s *ContestService) Open(ctx context.Context, contestID int64) error {
	return s.contestRepo.UpdateStatus(ctx, nil, contestID, model.ContestStatusScheduled, model.ContestStatusOpen)
}

// Close 截止报名（OPEN -> CLOSED），截止后才能结算
func (s *ContestService) Close(ctx context.Context, contestID int64) error {
	return s.contestRepo.UpdateStatus(ctx, nil, contestID, model.ContestStatusOpen, model.ContestStatusClosed)
}

// AssignRank 结算前为报名记录指定名次
func (s *ContestService) AssignRank(ctx context.Context, contestID, entryID int64, rank int) error {
	contest, err := s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return err
	}
	if contest.IsTerminal() {
		return ErrAlreadySettled
	}

	entry, err := s.entryRepo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.ContestID != contestID {
		return repository.ErrEntryNotFound
	}

	return s.entryRepo.UpdateWinnerRank(ctx, entryID, rank)
}

// ============================================================================
// 报名
// ============================================================================

type JoinResult struct {
	EntryID    int64           `json:"entry_id"`
	EntryNo    string          `json:"entry_no"`
	ContestID  int64           `json:"contest_id"`
	FeeCharged decimal.Decimal `json:"fee_charged"`
}

// Join 用户报名比赛
//
// 【关键点】扣费和报名记录在同一个事务内，要么都生效要么都不生效：
// 1. 先锁比赛行 —— 并发报名串行化，人数上限数真实行数，不做名额预占
// 2. 查重给友好错误，(contest,user) 唯一索引做最终防线
// 3. 锁钱包行后按 充值->赠送->奖金 的优先级拆分扣费
// 4. 写 CONTEST_ENTRY 流水（扣费即落账，processed_at 当场写入）
// 5. 最后建报名记录，费用按报名时刻快照
func (s *ContestService) Join(ctx context.Context, contestID, userID int64) (*JoinResult, error) {
	var result *JoinResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		contest, err := s.contestRepo.GetByIDForUpdate(ctx, tx, contestID)
		if err != nil {
			return err
		}

		if contest.Status != model.ContestStatusOpen {
			return ErrContestNotOpen
		}

		existing, err := s.entryRepo.GetByContestAndUser(ctx, tx, contestID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return repository.ErrDuplicateEntry
		}

		if contest.MaxPlayers != nil {
			count, err := s.entryRepo.CountByContest(ctx, tx, contestID)
			if err != nil {
				return err
			}
			if count >= int64(*contest.MaxPlayers) {
				return ErrContestFull
			}
		}

		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		fromDeposit, fromBonus, fromWinning, err := SplitEntryFee(wallet, contest.EntryFee)
		if err != nil {
			return err
		}

		if err := s.walletRepo.AdjustBuckets(ctx, tx, userID,
			fromDeposit.Neg(), fromWinning.Neg(), fromBonus.Neg()); err != nil {
			return err
		}

		now := time.Now()
		txn := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Type:          model.TxnTypeContestEntry,
			Amount:        contest.EntryFee.Neg(),
			Currency:      contest.Currency,
			RelatedType:   model.RelatedContest,
			RelatedID:     contestID,
			Metadata:      model.TxnMetadata{Note: fmt.Sprintf("报名比赛 %s", contest.Code)},
			Status:        model.TxnStatusConfirmed,
			ProcessedAt:   &now,
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		entry := &model.ContestEntry{
			EntryNo:    idgen.GenerateEntryNo(),
			ContestID:  contestID,
			UserID:     userID,
			FeeCharged: contest.EntryFee,
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			return err
		}

		result = &JoinResult{
			EntryID:    entry.ID,
			EntryNo:    entry.EntryNo,
			ContestID:  contestID,
			FeeCharged: contest.EntryFee,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ContestService] 报名成功: contestID=%d, userID=%d, fee=%s", contestID, userID, result.FeeCharged)
	return result, nil
}

// ============================================================================
// 结算
// ============================================================================

type PayoutDetail struct {
	Rank    int             `json:"rank"`
	EntryID int64           `json:"entry_id"`
	UserID  int64           `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	TxnNo   string          `json:"txn_no"`
}

type SettlementResult struct {
	Success           bool              `json:"success"`
	ContestID         int64             `json:"contest_id"`
	SettlementTime    time.Time         `json:"settlement_time"`
	NumPlayers        int64             `json:"num_players"`
	TotalPrizePool    decimal.Decimal   `json:"total_prize_pool"`
	CommissionPct     decimal.Decimal   `json:"commission_pct"`
	CommissionAmount  decimal.Decimal   `json:"commission_amount"`
	DistributablePool decimal.Decimal   `json:"distributable_pool"`
	TotalPayouts      decimal.Decimal   `json:"total_payouts"`
	Payouts           []PayoutDetail    `json:"payouts"`
	PrizeStructure    []model.PrizeSlot `json:"prize_structure"`
}

// Settle 结算比赛
//
// 幂等：settled_at 已写入时直接返回上次的结算结果，绝不重算重发。
// 并发：比赛维度分布式锁挡住同时到达的两次结算请求；
// 拿到锁后再查一次 settled_at，避免锁等待期间对方已完成结算。
// 原子：全部派奖 + 状态置为 SETTLED 在同一个数据库事务内，
// 中途任何失败整体回滚，不会出现"发了一半"的状态。
func (s *ContestService) Settle(ctx context.Context, contestID, adminID int64) (*SettlementResult, error) {
	contest, err := s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.SettledAt != nil {
		return s.buildSettlementResult(ctx, contest)
	}
	if contest.Status == model.ContestStatusCancelled {
		return nil, repository.ErrContestStatusInvalid
	}

	settleLock := lock.NewContestLock(s.redisClient, contestID, uuid.NewString())
	if err := settleLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer settleLock.Unlock(ctx)

	// 拿锁后重新读取，对方可能刚结算完
	contest, err = s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.SettledAt != nil {
		return s.buildSettlementResult(ctx, contest)
	}
	if contest.Status != model.ContestStatusClosed {
		return nil, repository.ErrContestStatusInvalid
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}

	numPlayers := int64(len(entries))
	pool, commission, distributable := ComputePrizePool(contest.EntryFee, numPlayers, contest.CommissionPct)
	plan := ComputePayouts(distributable, contest.PrizeStructure)

	settledAt := time.Now()
	result := &SettlementResult{
		Success:           true,
		ContestID:         contestID,
		SettlementTime:    settledAt,
		NumPlayers:        numPlayers,
		TotalPrizePool:    pool,
		CommissionPct:     contest.CommissionPct,
		CommissionAmount:  commission,
		DistributablePool: distributable,
		TotalPayouts:      decimal.Zero,
		Payouts:           []PayoutDetail{},
		PrizeStructure:    contest.PrizeStructure,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range plan {
			entry, err := s.entryRepo.GetByContestAndRank(ctx, tx, contestID, item.Rank)
			if err != nil {
				return err
			}
			if entry == nil {
				// 该名次没有对应的报名记录，跳过
				continue
			}

			if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, entry.UserID); err != nil {
				return err
			}
			if err := s.walletRepo.AdjustBuckets(ctx, tx, entry.UserID,
				decimal.Zero, item.Amount, decimal.Zero); err != nil {
				return fmt.Errorf("派奖入账失败: entryID=%d: %w", entry.ID, err)
			}

			now := time.Now()
			txn := &model.Transaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        entry.UserID,
				Type:          model.TxnTypePayout,
				Amount:        item.Amount,
				Currency:      contest.Currency,
				RelatedType:   model.RelatedEntry,
				RelatedID:     entry.ID,
				Metadata:      model.TxnMetadata{Note: fmt.Sprintf("比赛 %s 第%d名派奖", contest.Code, item.Rank)},
				Status:        model.TxnStatusConfirmed,
				ProcessedAt:   &now,
			}
			if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
				return fmt.Errorf("记录派奖流水失败: %w", err)
			}

			if err := s.entryRepo.SetPayout(ctx, tx, entry.ID, item.Amount, txn.TransactionNo); err != nil {
				return err
			}

			result.TotalPayouts = result.TotalPayouts.Add(item.Amount)
			result.Payouts = append(result.Payouts, PayoutDetail{
				Rank:    item.Rank,
				EntryID: entry.ID,
				UserID:  entry.UserID,
				Amount:  item.Amount,
				TxnNo:   txn.TransactionNo,
			})
		}

		// 状态翻转和最后一笔派奖同一事务提交
		return s.contestRepo.MarkSettled(ctx, tx, contestID, settledAt)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ContestService] 结算完成: contestID=%d, adminID=%d, players=%d, pool=%s, payouts=%s",
		contestID, adminID, numPlayers, pool, result.TotalPayouts)
	return result, nil
}

// buildSettlementResult 从已落库的结算数据重建结果（幂等返回路径）
// 比赛进入终态后报名费与抽佣不再变更，重新计算得到的奖池与当时一致
func (s *ContestService) buildSettlementResult(ctx context.Context, contest *model.Contest) (*SettlementResult, error) {
	entries, err := s.entryRepo.ListByContest(ctx, nil, contest.ID)
	if err != nil {
		return nil, err
	}

	numPlayers := int64(len(entries))
	pool, commission, distributable := ComputePrizePool(contest.EntryFee, numPlayers, contest.CommissionPct)

	result := &SettlementResult{
		Success:           true,
		ContestID:         contest.ID,
		SettlementTime:    *contest.SettledAt,
		NumPlayers:        numPlayers,
		TotalPrizePool:    pool,
		CommissionPct:     contest.CommissionPct,
		CommissionAmount:  commission,
		DistributablePool: distributable,
		TotalPayouts:      decimal.Zero,
		Payouts:           []PayoutDetail{},
		PrizeStructure:    contest.PrizeStructure,
	}

	for _, entry := range entries {
		if entry.WinnerRank == nil || !entry.PayoutAmount.Valid {
			continue
		}
		result.TotalPayouts = result.TotalPayouts.Add(entry.PayoutAmount.Decimal)
		result.Payouts = append(result.Payouts, PayoutDetail{
			Rank:    *entry.WinnerRank,
			EntryID: entry.ID,
			UserID:  entry.UserID,
			Amount:  entry.PayoutAmount.Decimal,
			TxnNo:   entry.PayoutTxnNo,
		})
	}

	return result, nil
}

// ============================================================================
// 取消与退款
// ============================================================================

type RefundDetail struct {
	EntryID int64           `json:"entry_id"`
	UserID  int64           `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	TxnNo   string          `json:"txn_no,omitempty"`
}

type FailedRefund struct {
	EntryID int64  `json:"entry_id"`
	UserID  int64  `json:"user_id"`
	Reason  string `json:"reason"`
}

type CancelReport struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message"`
	Participants      int             `json:"participants"`
	SuccessfulRefunds int             `json:"successful_refunds"`
	FailedRefunds     int             `json:"failed_refunds"`
	TotalRefunded     decimal.Decimal `json:"total_refunded"`
	Refunds           []RefundDetail  `json:"refunds"`
	FailedRefundsList []FailedRefund  `json:"failed_refunds_list"`
}

// Cancel 取消比赛并退款
//
// 与结算相反，退款是逐条独立的小事务：
// 某一条退款失败（钱包异常等）不能拖住其他人的退款，
// 失败的收集起来报告给管理员，比赛状态照样置为 CANCELLED ——
// 取消不可以被一条坏数据无限期卡死。
// 退款统一退回充值余额桶（确定、可审计的口径）；
// 每条退款先查 REFUND 流水做幂等，整个操作可以安全重跑。
func (s *ContestService) Cancel(ctx context.Context, contestID, adminID int64) (*CancelReport, error) {
	contest, err := s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.Status == model.ContestStatusSettled {
		return nil, ErrAlreadySettled
	}
	if contest.Status == model.ContestStatusScheduled {
		return nil, repository.ErrContestStatusInvalid
	}

	cancelLock := lock.NewContestLock(s.redisClient, contestID, uuid.NewString())
	if err := cancelLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer cancelLock.Unlock(ctx)

	contest, err = s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.Status == model.ContestStatusSettled {
		return nil, ErrAlreadySettled
	}

	// 先翻状态再退款：状态一到 CANCELLED 新报名就进不来了，
	// 否则列表快照和退款之间挤进来的报名会被漏退
	if contest.Status != model.ContestStatusCancelled {
		if err := s.contestRepo.UpdateStatus(ctx, nil, contestID, contest.Status, model.ContestStatusCancelled); err != nil {
			return nil, fmt.Errorf("更新比赛状态失败: %w", err)
		}
	}

	entries, err := s.entryRepo.ListByContest(ctx, nil, contestID)
	if err != nil {
		return nil, err
	}

	report := &CancelReport{
		Success:           true,
		Participants:      len(entries),
		TotalRefunded:     decimal.Zero,
		Refunds:           []RefundDetail{},
		FailedRefundsList: []FailedRefund{},
	}

	for _, entry := range entries {
		detail, err := s.refundEntry(ctx, contest, entry)
		if err != nil {
			log.Printf("[ContestService] 退款失败: contestID=%d, entryID=%d, err=%v", contestID, entry.ID, err)
			report.FailedRefunds++
			report.FailedRefundsList = append(report.FailedRefundsList, FailedRefund{
				EntryID: entry.ID,
				UserID:  entry.UserID,
				Reason:  err.Error(),
			})
			continue
		}
		report.SuccessfulRefunds++
		report.TotalRefunded = report.TotalRefunded.Add(detail.Amount)
		report.Refunds = append(report.Refunds, *detail)
	}

	if report.FailedRefunds > 0 {
		report.Message = fmt.Sprintf("比赛已取消，%d 条退款失败需人工处理", report.FailedRefunds)
	} else {
		report.Message = "比赛已取消，全部退款完成"
	}

	log.Printf("[ContestService] 取消完成: contestID=%d, adminID=%d, 成功=%d, 失败=%d, 退款=%s",
		contestID, adminID, report.SuccessfulRefunds, report.FailedRefunds, report.TotalRefunded)
	return report, nil
}

// refundEntry 单条报名的退款，独立事务
func (s *ContestService) refundEntry(ctx context.Context, contest *model.Contest, entry *model.ContestEntry) (*RefundDetail, error) {
	// 幂等：该报名已有退款流水则直接返回既有结果
	existing, err := s.txnRepo.GetByTypeAndRelated(ctx, model.TxnTypeRefund, model.RelatedEntry, entry.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &RefundDetail{
			EntryID: entry.ID,
			UserID:  entry.UserID,
			Amount:  existing.Amount,
			TxnNo:   existing.TransactionNo,
		}, nil
	}

	var txnNo string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, entry.UserID); err != nil {
			return err
		}

		// 退款统一进充值余额桶
		if err := s.walletRepo.AdjustBuckets(ctx, tx, entry.UserID,
			entry.FeeCharged, decimal.Zero, decimal.Zero); err != nil {
			return err
		}

		now := time.Now()
		txn := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        entry.UserID,
			Type:          model.TxnTypeRefund,
			Amount:        entry.FeeCharged,
			Currency:      contest.Currency,
			RelatedType:   model.RelatedEntry,
			RelatedID:     entry.ID,
			Metadata:      model.TxnMetadata{Note: fmt.Sprintf("比赛 %s 取消退款", contest.Code)},
			Status:        model.TxnStatusConfirmed,
			ProcessedAt:   &now,
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return err
		}
		txnNo = txn.TransactionNo
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RefundDetail{
		EntryID: entry.ID,
		UserID:  entry.UserID,
		Amount:  entry.FeeCharged,
		TxnNo:   txnNo,
	}, nil
}
