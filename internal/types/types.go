package types

type PositionSide string

type PositionStatus string

type CloseReason string

type AccountStatus string

type ContestKind string

type ContestStatus string

type MarginStatus string

type RankingMethod string

type TieBreaker string

type TiePrizePolicy string

type WalletTxKind string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

const (
	CloseReasonUser       CloseReason = "user"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonMarginCall CloseReason = "margin_call"
	CloseReasonContestEnd CloseReason = "contest_end"
)

const (
	AccountStatusActive       AccountStatus = "active"
	AccountStatusLiquidated   AccountStatus = "liquidated"
	AccountStatusCompleted    AccountStatus = "completed"
	AccountStatusDisqualified AccountStatus = "disqualified"
	AccountStatusRefunded     AccountStatus = "refunded"
)

const (
	ContestKindCompetition ContestKind = "competition"
	ContestKindChallenge   ContestKind = "challenge"
)

const (
	ContestStatusPending   ContestStatus = "pending"
	ContestStatusActive    ContestStatus = "active"
	ContestStatusCompleted ContestStatus = "completed"
	ContestStatusExpired   ContestStatus = "expired"
	ContestStatusCancelled ContestStatus = "cancelled"
)

const (
	MarginStatusSafe        MarginStatus = "safe"
	MarginStatusWarning     MarginStatus = "warning"
	MarginStatusDanger      MarginStatus = "danger"
	MarginStatusLiquidation MarginStatus = "liquidation"
)

const (
	RankByPnl          RankingMethod = "pnl"
	RankByROI          RankingMethod = "roi"
	RankByTotalCapital RankingMethod = "total_capital"
	RankByWinRate      RankingMethod = "win_rate"
	RankByWinsCount    RankingMethod = "wins_count"
	RankByProfitFactor RankingMethod = "profit_factor"
)

const (
	TieBreakTradesCount  TieBreaker = "trades_count"
	TieBreakWinRate      TieBreaker = "win_rate"
	TieBreakTotalCapital TieBreaker = "total_capital"
	TieBreakROI          TieBreaker = "roi"
	TieBreakJoinedAt     TieBreaker = "joined_at"
	TieBreakSplit        TieBreaker = "split"
)

const (
	TiePrizeSplitEqual     TiePrizePolicy = "split_equal"
	TiePrizeSplitWeighted  TiePrizePolicy = "split_weighted"
	TiePrizeFirstTakesAll  TiePrizePolicy = "first_takes_all"
	TiePrizeHigherRankMore TiePrizePolicy = "higher_rank_more"
)

const (
	WalletTxDeposit  WalletTxKind = "deposit"
	WalletTxWithdraw WalletTxKind = "withdraw"
	WalletTxStake    WalletTxKind = "stake"
	WalletTxPrize    WalletTxKind = "prize"
	WalletTxRefund   WalletTxKind = "refund"
)
