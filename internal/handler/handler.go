package handler

import (
	"errors"
	"strconv"

	"cricketledger/internal/config"
	"cricketledger/internal/infrastructure/idem"
	"cricketledger/internal/model"
	"cricketledger/internal/repository"
	"cricketledger/internal/service"
	"cricketledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	userRepo          *repository.UserRepository
	walletService     *service.WalletService
	contestService    *service.ContestService
	depositService    *service.DepositService
	withdrawalService *service.WithdrawalService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	idemStore := idem.NewStore(rdb, "deposit")
	return &Handler{
		userRepo:          repository.NewUserRepository(db),
		walletService:     service.NewWalletService(db),
		contestService:    service.NewContestService(db, rdb, cfg),
		depositService:    service.NewDepositService(db, idemStore, cfg),
		withdrawalService: service.NewWithdrawalService(db, cfg),
	}
}

// businessError 把业务错误翻译成机器可判定的错误码
// 预期内的失败结果一律走这里，不允许 200 + 静默失败
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, repository.ErrContestNotFound):
		response.BusinessError(c, response.CodeContestNotFound, err.Error())
	case errors.Is(err, service.ErrContestNotOpen):
		response.BusinessError(c, response.CodeContestNotOpen, err.Error())
	case errors.Is(err, service.ErrContestFull):
		response.BusinessError(c, response.CodeContestFull, err.Error())
	case errors.Is(err, repository.ErrDuplicateEntry):
		response.BusinessError(c, response.CodeDuplicateEntry, err.Error())
	case errors.Is(err, service.ErrAlreadySettled):
		response.BusinessError(c, response.CodeAlreadySettled, err.Error())
	case errors.Is(err, repository.ErrContestStatusInvalid):
		response.BusinessError(c, response.CodeContestStateInvalid, err.Error())
	case errors.Is(err, repository.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, err.Error())
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrWalletNotFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, repository.ErrWithdrawalNotFound), errors.Is(err, repository.ErrWithdrawalStatusInvalid):
		response.BusinessError(c, response.CodeWithdrawalFailed, err.Error())
	case errors.Is(err, service.ErrInvalidNotification):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 用户与钱包
// ============================================================

// RegisterRequest 注册请求
type RegisterRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
}

// Register 注册用户（幂等，重复注册返回既有用户）
// POST /api/v1/user/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.userRepo.Register(c.Request.Context(), req.TelegramID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, user)
}

// GetBalance 查询用户余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	wallet, err := h.walletService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":         wallet.UserID,
		"deposit_balance": wallet.DepositBalance,
		"winning_balance": wallet.WinningBalance,
		"bonus_balance":   wallet.BonusBalance,
		"total_balance":   wallet.TotalBalance(),
	})
}

// ============================================================
// 充值回调
// ============================================================

// DepositNotifyRequest 链上支付网关的确认通知
type DepositNotifyRequest struct {
	TxHash        string            `json:"tx_hash" binding:"required"`
	Confirmations int               `json:"confirmations" binding:"gte=0"`
	Chain         string            `json:"chain" binding:"required"`
	ToAddress     string            `json:"to_address"`
	Amount        string            `json:"amount" binding:"required"` // 十进制字符串，避免 JSON 浮点精度问题
	Currency      string            `json:"currency" binding:"required"`
	UserID        int64             `json:"user_id"`
	BlockHeight   uint64            `json:"block_height"`
	Metadata      map[string]string `json:"metadata"`
}

// DepositNotify 接收充值确认通知
// POST /api/v1/deposit/notify
//
// 【关键点】同一个 tx_hash 的通知会到达任意多次，
// 这个接口必须保证入账任务最多入队一次（幂等键），
// 入账本身最多执行一次（processed_at），两层互相独立
func (h *Handler) DepositNotify(c *gin.Context) {
	var req DepositNotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 不是合法的十进制数")
		return
	}

	result, err := h.depositService.Ingest(c.Request.Context(), &service.DepositNotification{
		TxHash:        req.TxHash,
		Confirmations: req.Confirmations,
		Chain:         req.Chain,
		ToAddress:     req.ToAddress,
		Amount:        amount,
		Currency:      req.Currency,
		UserID:        req.UserID,
		BlockHeight:   req.BlockHeight,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 比赛
// ============================================================

// CreateContestRequest 创建比赛请求
type CreateContestRequest struct {
	MatchID        int64             `json:"match_id" binding:"required"`
	Title          string            `json:"title" binding:"required"`
	EntryFee       string            `json:"entry_fee" binding:"required"`
	MaxPlayers     *int              `json:"max_players"`
	PrizeStructure []model.PrizeSlot `json:"prize_structure" binding:"required"`
	CommissionPct  *string           `json:"commission_pct"`
	AdminID        int64             `json:"admin_id" binding:"required"`
}

// CreateContest 管理员创建比赛
// POST /api/v1/admin/contest/create
func (h *Handler) CreateContest(c *gin.Context) {
	var req CreateContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	fee, err := decimal.NewFromString(req.EntryFee)
	if err != nil {
		response.ParamError(c, "entry_fee 不是合法的十进制数")
		return
	}

	var commissionPct *decimal.Decimal
	if req.CommissionPct != nil {
		pct, err := decimal.NewFromString(*req.CommissionPct)
		if err != nil {
			response.ParamError(c, "commission_pct 不是合法的十进制数")
			return
		}
		commissionPct = &pct
	}

	contest, err := h.contestService.Create(c.Request.Context(), &service.CreateContestRequest{
		MatchID:        req.MatchID,
		Title:          req.Title,
		EntryFee:       fee,
		MaxPlayers:     req.MaxPlayers,
		PrizeStructure: req.PrizeStructure,
		CommissionPct:  commissionPct,
		AdminID:        req.AdminID,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, contest)
}

type contestIDRequest struct {
	ContestID int64 `json:"contest_id" binding:"required"`
	AdminID   int64 `json:"admin_id" binding:"required"`
}

// OpenContest 开放报名
// POST /api/v1/admin/contest/open
func (h *Handler) OpenContest(c *gin.Context) {
	var req contestIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.contestService.Open(c.Request.Context(), req.ContestID); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{"contest_id": req.ContestID, "status": model.ContestStatusOpen})
}

// CloseContest 截止报名
// POST /api/v1/admin/contest/close
func (h *Handler) CloseContest(c *gin.Context) {
	var req contestIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.contestService.Close(c.Request.Context(), req.ContestID); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{"contest_id": req.ContestID, "status": model.ContestStatusClosed})
}

// JoinContestRequest 报名请求
type JoinContestRequest struct {
	ContestID int64 `json:"contest_id" binding:"required"`
	UserID    int64 `json:"user_id" binding:"required"`
}

// JoinContest 用户报名
// POST /api/v1/contest/join
func (h *Handler) JoinContest(c *gin.Context) {
	var req JoinContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.contestService.Join(c.Request.Context(), req.ContestID, req.UserID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// AssignRankRequest 指定名次请求
type AssignRankRequest struct {
	ContestID int64 `json:"contest_id" binding:"required"`
	EntryID   int64 `json:"entry_id" binding:"required"`
	Rank      int   `json:"rank" binding:"required,gt=0"`
	AdminID   int64 `json:"admin_id" binding:"required"`
}

// AssignRank 结算前为报名指定名次
// POST /api/v1/admin/contest/rank
func (h *Handler) AssignRank(c *gin.Context) {
	var req AssignRankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.contestService.AssignRank(c.Request.Context(), req.ContestID, req.EntryID, req.Rank); err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{"entry_id": req.EntryID, "rank": req.Rank})
}

// SettleContest 管理员结算
// POST /api/v1/admin/contest/settle
//
// 【关键点】结算是全系统风险最高的操作：
// 幂等（重复调用返回上次结果）、比赛级互斥（分布式锁）、
// 全部派奖一个事务（不存在发了一半的状态）
func (h *Handler) SettleContest(c *gin.Context) {
	var req contestIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.contestService.Settle(c.Request.Context(), req.ContestID, req.AdminID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// CancelContest 管理员取消
// POST /api/v1/admin/contest/cancel
func (h *Handler) CancelContest(c *gin.Context) {
	var req contestIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	report, err := h.contestService.Cancel(c.Request.Context(), req.ContestID, req.AdminID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, report)
}

// ============================================================
// 提现
// ============================================================

// WithdrawRequest 提现申请
type WithdrawRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// RequestWithdrawal 发起提现
// POST /api/v1/withdraw/request
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 不是合法的十进制数")
		return
	}

	withdrawal, err := h.withdrawalService.Request(c.Request.Context(), req.UserID, amount, req.Address)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// ReviewWithdrawalRequest 提现审核
type ReviewWithdrawalRequest struct {
	WithdrawalID int64 `json:"withdrawal_id" binding:"required"`
	Approve      *bool `json:"approve" binding:"required"`
	AdminID      int64 `json:"admin_id" binding:"required"`
}

// ReviewWithdrawal 管理员审核提现
// POST /api/v1/admin/withdraw/review
func (h *Handler) ReviewWithdrawal(c *gin.Context) {
	var req ReviewWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.Review(c.Request.Context(), req.WithdrawalID, *req.Approve, req.AdminID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, withdrawal)
}
