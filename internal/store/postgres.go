package store

import (
	"context"
	"errors"
	"time"

	"tradearena/internal/model"
	"tradearena/internal/pricing"
	"tradearena/internal/settings"
	"tradearena/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const accountColumns = `id, user_id, contest_id, starting_capital, current_capital, available_capital, used_margin, realized_pnl, gross_profit, gross_loss, trades_count, wins_count, losses_count, open_positions, rank, status, joined_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.ContestID, &a.StartingCapital, &a.CurrentCapital,
		&a.AvailableCapital, &a.UsedMargin, &a.RealizedPnl, &a.GrossProfit,
		&a.GrossLoss, &a.TradesCount, &a.WinsCount, &a.LossesCount,
		&a.OpenPositions, &a.Rank, &a.Status, &a.JoinedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Postgres) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Postgres) collectAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Postgres) ListAccountsByUser(ctx context.Context, userID string) ([]model.Account, error) {
	return s.collectAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY joined_at DESC`, userID)
}

func (s *Postgres) ListActiveAccounts(ctx context.Context) ([]model.Account, error) {
	return s.collectAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = 'active' ORDER BY joined_at`)
}

func (s *Postgres) ListAccountsByContest(ctx context.Context, contestID string) ([]model.Account, error) {
	return s.collectAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE contest_id = $1 ORDER BY joined_at`, contestID)
}

func (s *Postgres) SetAccountStatus(ctx context.Context, id string, from, to types.AccountStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const positionColumns = `id, account_id, user_id, contest_id, symbol, side, quantity, entry_price, leverage, margin_used, contract_size, stop_loss, take_profit, trailing_stop, trailing_anchor, status, coalesce(close_reason, ''), exit_price, realized_pnl, opened_at, closed_at`

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	err := row.Scan(
		&p.ID, &p.AccountID, &p.UserID, &p.ContestID, &p.Symbol, &p.Side,
		&p.Quantity, &p.EntryPrice, &p.Leverage, &p.MarginUsed, &p.ContractSize,
		&p.StopLoss, &p.TakeProfit, &p.TrailingStop, &p.TrailingAnchor,
		&p.Status, &p.CloseReason, &p.ExitPrice, &p.RealizedPnl,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	return scanPosition(s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id))
}

func (s *Postgres) collectPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListOpenPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	return s.collectPositions(ctx, `SELECT `+positionColumns+` FROM positions WHERE account_id = $1 AND status = 'open' ORDER BY opened_at`, accountID)
}

func (s *Postgres) ListOpenPositionsWithTriggers(ctx context.Context) ([]model.Position, error) {
	return s.collectPositions(ctx, `SELECT `+positionColumns+` FROM positions WHERE status = 'open' AND (stop_loss IS NOT NULL OR take_profit IS NOT NULL OR trailing_stop IS NOT NULL) ORDER BY symbol, opened_at`)
}

func (s *Postgres) OpenPosition(ctx context.Context, p *model.Position) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET available_capital = available_capital - $2,
		    used_margin = used_margin + $2,
		    open_positions = open_positions + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND available_capital >= $2
	`, p.AccountID, p.MarginUsed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM accounts WHERE id = $1`, p.AccountID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrInsufficientMargin
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO positions (id, account_id, user_id, contest_id, symbol, side, quantity, entry_price, leverage, margin_used, contract_size, stop_loss, take_profit, trailing_stop, trailing_anchor, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'open', $16)
	`, p.ID, p.AccountID, p.UserID, p.ContestID, p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.Leverage, p.MarginUsed, p.ContractSize, p.StopLoss, p.TakeProfit, p.TrailingStop, p.TrailingAnchor, p.OpenedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) ClosePosition(ctx context.Context, params ClosePositionParams) (*model.Position, bool, error) {
	status := types.PositionStatusClosed
	if params.Reason == types.CloseReasonMarginCall {
		status = types.PositionStatusLiquidated
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	// The conditional status flip is the linearization point: only one
	// caller sees a row here, every other caller falls through to the
	// stored terminal result.
	won, err := scanPosition(tx.QueryRow(ctx, `
		UPDATE positions
		SET status = $2, close_reason = $3, exit_price = $4, realized_pnl = $5, closed_at = $6
		WHERE id = $1 AND status = 'open'
		RETURNING `+positionColumns, params.PositionID, string(status), string(params.Reason), params.ExitPrice, params.RealizedPnl, params.ClosedAt))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		prior, err := s.GetPosition(ctx, params.PositionID)
		if err != nil {
			return nil, false, err
		}
		return prior, false, nil
	}

	winDelta := 0
	lossDelta := 1
	if params.RealizedPnl.GreaterThan(decimal.Zero) {
		winDelta, lossDelta = 1, 0
	}
	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET current_capital = current_capital + $2,
		    available_capital = available_capital + $2 + $3,
		    used_margin = used_margin - $3,
		    realized_pnl = realized_pnl + $2,
		    gross_profit = gross_profit + GREATEST($2, 0),
		    gross_loss = gross_loss + LEAST($2, 0),
		    trades_count = trades_count + 1,
		    wins_count = wins_count + $4,
		    losses_count = losses_count + $5,
		    open_positions = open_positions - 1,
		    updated_at = NOW()
		WHERE id = $1
	`, won.AccountID, params.RealizedPnl, won.MarginUsed, winDelta, lossDelta)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trade_history (position_id, account_id, symbol, side, quantity, entry_price, exit_price, realized_pnl, close_reason, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, won.ID, won.AccountID, won.Symbol, string(won.Side), won.Quantity, won.EntryPrice, params.ExitPrice, params.RealizedPnl, string(params.Reason), params.ClosedAt)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO position_events (account_id, position_id, symbol, close_reason, realized_pnl, exit_price, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, won.AccountID, won.ID, won.Symbol, string(params.Reason), params.RealizedPnl, params.ExitPrice, params.ClosedAt, params.ClosedAt.Add(params.EventTTL))
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return won, true, nil
}

func (s *Postgres) UpdateTrailingAnchor(ctx context.Context, positionID string, anchor decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, `UPDATE positions SET trailing_anchor = $2 WHERE id = $1 AND status = 'open'`, positionID, anchor)
	return err
}

func (s *Postgres) ListTradeHistory(ctx context.Context, accountID string, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, position_id, account_id, symbol, side, quantity, entry_price, exit_price, realized_pnl, close_reason, closed_at
		FROM trade_history WHERE account_id = $1 ORDER BY closed_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		if err := rows.Scan(&t.ID, &t.PositionID, &t.AccountID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.RealizedPnl, &t.CloseReason, &t.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	var w model.Wallet
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, credit_balance, total_deposited, total_withdrawn, total_spent, total_won, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.CreditBalance, &w.TotalDeposited, &w.TotalWithdrawn, &w.TotalSpent, &w.TotalWon, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *Postgres) AdjustWalletBalance(ctx context.Context, userID string, delta decimal.Decimal, kind types.WalletTxKind, reference string) (*model.WalletTransaction, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	record, err := adjustWalletTx(ctx, tx, userID, delta, kind, reference)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// adjustWalletTx applies a guarded balance delta inside tx and appends the
// transaction record. The guard keeps credit_balance >= 0 always.
func adjustWalletTx(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal, kind types.WalletTxKind, reference string) (*model.WalletTransaction, error) {
	var before, after decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET credit_balance = credit_balance + $2,
		    total_deposited = total_deposited + CASE WHEN $3 = 'deposit' THEN $2 ELSE 0 END,
		    total_withdrawn = total_withdrawn + CASE WHEN $3 = 'withdraw' THEN -$2 ELSE 0 END,
		    total_spent = total_spent + CASE WHEN $3 = 'stake' THEN -$2 ELSE 0 END,
		    total_won = total_won + CASE WHEN $3 = 'prize' THEN $2 ELSE 0 END,
		    updated_at = NOW()
		WHERE user_id = $1 AND credit_balance + $2 >= 0
		RETURNING credit_balance - $2, credit_balance
	`, userID, delta, string(kind)).Scan(&before, &after)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrInsufficientBalance
	}

	record := &model.WalletTransaction{
		UserID:        userID,
		Kind:          kind,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
		CreatedAt:     time.Now().UTC(),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (user_id, kind, amount, balance_before, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, record.UserID, string(record.Kind), record.Amount, record.BalanceBefore, record.BalanceAfter, record.Reference, record.CreatedAt).Scan(&record.ID)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Postgres) ListWalletTransactions(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kind, amount, balance_before, balance_after, reference, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WalletTransaction
	for rows.Next() {
		var t model.WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const queuedOrderColumns = `id, account_id, user_id, symbol, side, quantity, leverage, limit_price, stop_loss, take_profit, expires_at, created_at`

func (s *Postgres) CreateQueuedOrder(ctx context.Context, o *model.QueuedOrder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queued_orders (`+queuedOrderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, o.ID, o.AccountID, o.UserID, o.Symbol, string(o.Side), o.Quantity, o.Leverage, o.LimitPrice, o.StopLoss, o.TakeProfit, o.ExpiresAt, o.CreatedAt)
	return err
}

func scanQueuedOrder(row pgx.Row) (*model.QueuedOrder, error) {
	var o model.QueuedOrder
	err := row.Scan(&o.ID, &o.AccountID, &o.UserID, &o.Symbol, &o.Side, &o.Quantity, &o.Leverage, &o.LimitPrice, &o.StopLoss, &o.TakeProfit, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *Postgres) GetQueuedOrder(ctx context.Context, id string) (*model.QueuedOrder, error) {
	return scanQueuedOrder(s.pool.QueryRow(ctx, `SELECT `+queuedOrderColumns+` FROM queued_orders WHERE id = $1`, id))
}

func (s *Postgres) DeleteQueuedOrder(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM queued_orders WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) collectQueuedOrders(ctx context.Context, query string, args ...any) ([]model.QueuedOrder, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QueuedOrder
	for rows.Next() {
		o, err := scanQueuedOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Postgres) ListQueuedOrders(ctx context.Context) ([]model.QueuedOrder, error) {
	return s.collectQueuedOrders(ctx, `SELECT `+queuedOrderColumns+` FROM queued_orders ORDER BY symbol, created_at`)
}

func (s *Postgres) ListQueuedOrdersByAccount(ctx context.Context, accountID string) ([]model.QueuedOrder, error) {
	return s.collectQueuedOrders(ctx, `SELECT `+queuedOrderColumns+` FROM queued_orders WHERE account_id = $1 ORDER BY created_at`, accountID)
}

const contestColumns = `id, kind, name, start_time, end_time, status, entry_fee, prize_pool, ranking_method, tie_breakers, tie_prize_policy, minimum_trades, minimum_win_rate, minimum_pnl, min_participants, fee_rate, vat_rate`

func scanContest(row pgx.Row) (*model.Contest, error) {
	var c model.Contest
	var breakers []string
	err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.StartTime, &c.EndTime, &c.Status, &c.EntryFee, &c.PrizePool, &c.RankingMethod, &breakers, &c.TiePrizePolicy, &c.MinimumTrades, &c.MinimumWinRate, &c.MinimumPnl, &c.MinParticipants, &c.FeeRate, &c.VatRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for _, b := range breakers {
		c.TieBreakers = append(c.TieBreakers, types.TieBreaker(b))
	}
	return &c, nil
}

func (s *Postgres) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	return scanContest(s.pool.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
}

func (s *Postgres) collectContests(ctx context.Context, query string, args ...any) ([]model.Contest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListDueContests(ctx context.Context, now time.Time) ([]model.Contest, error) {
	return s.collectContests(ctx, `SELECT `+contestColumns+` FROM contests WHERE status = 'active' AND end_time <= $1 ORDER BY end_time`, now)
}

func (s *Postgres) ListExpirableContests(ctx context.Context, now time.Time) ([]model.Contest, error) {
	return s.collectContests(ctx, `SELECT `+contestColumns+` FROM contests WHERE status = 'pending' AND start_time <= $1 ORDER BY start_time`, now)
}

func (s *Postgres) FinalizeContest(ctx context.Context, contestID string, results []FinalResult, payouts []Payout) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE contests SET status = 'completed' WHERE id = $1 AND status = 'active'`, contestID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, r := range results {
		_, err := tx.Exec(ctx, `UPDATE accounts SET rank = $2, status = $3, updated_at = NOW() WHERE id = $1`, r.AccountID, r.Rank, string(r.Status))
		if err != nil {
			return false, err
		}
	}
	for _, p := range payouts {
		if _, err := adjustWalletTx(ctx, tx, p.UserID, p.Amount, p.Kind, p.Reference); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Postgres) ExpireContest(ctx context.Context, contestID string, refunds []Payout) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE contests SET status = 'expired' WHERE id = $1 AND status = 'pending'`, contestID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `UPDATE accounts SET status = 'refunded', updated_at = NOW() WHERE contest_id = $1`, contestID)
	if err != nil {
		return false, err
	}
	for _, p := range refunds {
		if _, err := adjustWalletTx(ctx, tx, p.UserID, p.Amount, p.Kind, p.Reference); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Postgres) TakePositionEvents(ctx context.Context, accountID, subscriberID string, now time.Time) ([]model.PositionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE position_events
		SET delivered_to = array_append(delivered_to, $2)
		WHERE account_id = $1 AND expires_at > $3 AND NOT (delivered_to @> ARRAY[$2])
		RETURNING id, account_id, position_id, symbol, close_reason, realized_pnl, exit_price, created_at, expires_at
	`, accountID, subscriberID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PositionEvent
	for rows.Next() {
		var e model.PositionEvent
		if err := rows.Scan(&e.ID, &e.AccountID, &e.PositionID, &e.Symbol, &e.CloseReason, &e.RealizedPnl, &e.ExitPrice, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) LoadSettings(ctx context.Context) (settings.Settings, error) {
	cfg := settings.Defaults()
	var (
		safe, warning, marginCall, liquidation decimal.Decimal
		maxQty, maxNotional                    decimal.Decimal
		minLev, maxLev, maxOpen, orderTTL      int
		eventTTL                               int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT safe_level, warning_level, margin_call_level, liquidation_level,
		       min_leverage, max_leverage, max_position_qty, max_notional_usd,
		       max_open_per_account, queued_order_ttl_hours, event_ttl_seconds
		FROM engine_settings WHERE id = 1
	`).Scan(&safe, &warning, &marginCall, &liquidation, &minLev, &maxLev, &maxQty, &maxNotional, &maxOpen, &orderTTL, &eventTTL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cfg, nil
		}
		return cfg, err
	}
	if safe.GreaterThan(decimal.Zero) {
		cfg.Thresholds.Safe = safe
	}
	if warning.GreaterThan(decimal.Zero) {
		cfg.Thresholds.Warning = warning
	}
	if marginCall.GreaterThan(decimal.Zero) {
		cfg.Thresholds.MarginCall = marginCall
	}
	if liquidation.GreaterThan(decimal.Zero) {
		cfg.Thresholds.Liquidation = liquidation
	}
	if minLev > 0 {
		cfg.MinLeverage = minLev
	}
	if maxLev > 0 {
		cfg.MaxLeverage = maxLev
	}
	if maxQty.GreaterThan(decimal.Zero) {
		cfg.MaxPositionQty = maxQty
	}
	if maxNotional.GreaterThan(decimal.Zero) {
		cfg.MaxNotionalUSD = maxNotional
	}
	if maxOpen > 0 {
		cfg.MaxOpenPerAcct = maxOpen
	}
	if orderTTL > 0 {
		cfg.QueuedOrderTTL = orderTTL
	}
	if eventTTL > 0 {
		cfg.EventTTLSeconds = eventTTL
	}
	return cfg, nil
}

func (s *Postgres) UpsertQuote(ctx context.Context, q pricing.Quote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO market_quotes (symbol, bid, ask, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE
		SET bid = EXCLUDED.bid, ask = EXCLUDED.ask, updated_at = EXCLUDED.updated_at`,
		q.Symbol, q.Bid, q.Ask, q.Timestamp,
	)
	return err
}

func (s *Postgres) GetQuote(ctx context.Context, symbol string) (pricing.Quote, error) {
	q := pricing.Quote{Symbol: symbol}
	err := s.pool.QueryRow(ctx, `
		SELECT bid, ask, updated_at FROM market_quotes WHERE symbol = $1`,
		symbol,
	).Scan(&q.Bid, &q.Ask, &q.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.Quote{}, ErrNotFound
	}
	if err != nil {
		return pricing.Quote{}, err
	}
	return q, nil
}
