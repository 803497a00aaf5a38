package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
)

// chainLockKey is the transaction-scoped advisory lock that serialises
// appends to the audit chain. It must be the same on every instance.
const chainLockKey = int64(2_024_031_117)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Decimals travel as text so no precision is lost between NUMERIC and
// decimal.Decimal.
const (
	pgCropColumns       = `crop_id, crop_type, quantity::text, quality_grade, mandi_id, farmer_id, registered_at`
	pgTokenColumns      = `token_id, linked_crop_id, owner_id, status, created_at, updated_at`
	pgSettlementColumns = `settlement_id, token_id, seller_id, buyer_id, quantity::text, price_per_kg::text,
		total_amount::text, settlement_status, settlement_time, wallet_debited`
	pgEntryColumns      = `seq, event_type, actor, data, recorded_at, previous_hash, current_hash`
)

// PostgresStore is a Store backed by PostgreSQL. The schema lives in
// migrations/ and is applied by cmd/migrate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger, now: time.Now}
}

// InTx implements Store.
func (p *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{tx: tx, logger: p.logger, now: p.now}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close implements Store. The pool is owned by the caller.
func (p *PostgresStore) Close() error { return nil }

// GetCrop implements Store.
func (p *PostgresStore) GetCrop(ctx context.Context, cropID string) (*model.Crop, error) {
	return pgGetCrop(ctx, p.pool, cropID)
}

// ListCrops implements Store.
func (p *PostgresStore) ListCrops(ctx context.Context) ([]*model.Crop, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgCropColumns+` FROM crops ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("list crops: %w", err)
	}
	defer rows.Close()

	crops := make([]*model.Crop, 0)
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, err
		}
		crops = append(crops, c)
	}
	return crops, rows.Err()
}

// GetToken implements Store.
func (p *PostgresStore) GetToken(ctx context.Context, tokenID string) (*model.Token, error) {
	return scanOneToken(p.pool.QueryRow(ctx,
		`SELECT `+pgTokenColumns+` FROM tokens WHERE token_id = $1`, tokenID))
}

// ListTokens implements Store.
func (p *PostgresStore) ListTokens(ctx context.Context, f TokenFilter) ([]*model.Token, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgTokenColumns+` FROM tokens
		 WHERE ($1 = '' OR status = $1)
		   AND ($2 = '' OR owner_id = $2)
		 ORDER BY ord`,
		string(f.Status), f.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*model.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ListSettlements implements Store.
func (p *PostgresStore) ListSettlements(ctx context.Context) ([]*model.Settlement, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgSettlementColumns+` FROM settlements ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	settlements := make([]*model.Settlement, 0)
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

// GetAccount implements Store.
func (p *PostgresStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return scanOneAccount(p.pool.QueryRow(ctx,
		`SELECT account_id, balance::text, updated_at FROM accounts WHERE account_id = $1`, accountID))
}

// Entries implements ledger.Ledger.
func (p *PostgresStore) Entries(ctx context.Context) ([]*ledger.Entry, error) {
	entries := make([]*ledger.Entry, 0)
	err := p.walk(ctx, func(e *ledger.Entry) {
		entries = append(entries, e)
	})
	return entries, err
}

// Get implements ledger.Ledger.
func (p *PostgresStore) Get(ctx context.Context, seq int64) (*ledger.Entry, error) {
	e, err := scanEntry(p.pool.QueryRow(ctx,
		`SELECT `+pgEntryColumns+` FROM audit_entries WHERE seq = $1`, seq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("audit entry %d: %w", seq, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", seq, err)
	}
	return e, nil
}

// Len implements ledger.Ledger.
func (p *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements ledger.Ledger. Rows are streamed in seq order, so memory
// use does not grow with the chain.
func (p *PostgresStore) Verify(ctx context.Context) (*ledger.Report, error) {
	v := ledger.NewVerifier()
	if err := p.walk(ctx, func(e *ledger.Entry) { v.Check(e) }); err != nil {
		return nil, err
	}
	return v.Report(), nil
}

// Root implements ledger.Ledger.
func (p *PostgresStore) Root(ctx context.Context) (string, error) {
	var hash string
	err := p.pool.QueryRow(ctx,
		"SELECT current_hash FROM audit_entries ORDER BY seq DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}

func (p *PostgresStore) walk(ctx context.Context, fn func(*ledger.Entry)) error {
	rows, err := p.pool.Query(ctx, `SELECT `+pgEntryColumns+` FROM audit_entries ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		fn(e)
	}
	return rows.Err()
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	tx     pgx.Tx
	logger *zap.Logger
	now    func() time.Time
}

func (t *pgTx) GetCrop(ctx context.Context, cropID string) (*model.Crop, error) {
	return pgGetCrop(ctx, t.tx, cropID)
}

func (t *pgTx) GetTokenForUpdate(ctx context.Context, tokenID string) (*model.Token, error) {
	return scanOneToken(t.tx.QueryRow(ctx,
		`SELECT `+pgTokenColumns+` FROM tokens WHERE token_id = $1 FOR UPDATE`, tokenID))
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, accountID string) (*model.Account, error) {
	return scanOneAccount(t.tx.QueryRow(ctx,
		`SELECT account_id, balance::text, updated_at FROM accounts WHERE account_id = $1 FOR UPDATE`,
		accountID))
}

func (t *pgTx) InsertCrop(ctx context.Context, c *model.Crop) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO crops (crop_id, crop_type, quantity, quality_grade, mandi_id, farmer_id, registered_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`,
		c.CropID, c.CropType, c.Quantity.String(), c.QualityGrade, c.MandiID, c.FarmerID, c.RegisteredAt,
	)
	return pgWriteErr("insert crop", err)
}

func (t *pgTx) InsertToken(ctx context.Context, tok *model.Token) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO tokens (token_id, linked_crop_id, owner_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.TokenID, tok.LinkedCropID, tok.OwnerID, string(tok.Status), tok.CreatedAt, tok.UpdatedAt,
	)
	return pgWriteErr("insert token", err)
}

func (t *pgTx) UpdateToken(ctx context.Context, tok *model.Token) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tokens SET owner_id = $2, status = $3, updated_at = $4 WHERE token_id = $1`,
		tok.TokenID, tok.OwnerID, string(tok.Status), tok.UpdatedAt,
	)
	if err != nil {
		return pgWriteErr("update token", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update token %s: %w", tok.TokenID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertSettlement(ctx context.Context, s *model.Settlement) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO settlements (
			settlement_id, token_id, seller_id, buyer_id, quantity, price_per_kg,
			total_amount, settlement_status, settlement_time, wallet_debited
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)`,
		s.SettlementID, s.TokenID, s.SellerID, s.BuyerID,
		s.Quantity.String(), s.PricePerKg.String(), s.TotalAmount.String(),
		s.SettlementStatus, s.SettlementTime, s.WalletDebited,
	)
	return pgWriteErr("insert settlement", err)
}

func (t *pgTx) PutAccount(ctx context.Context, a *model.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (account_id, balance, updated_at)
		 VALUES ($1, $2::numeric, $3)
		 ON CONFLICT (account_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		a.AccountID, a.Balance.String(), a.UpdatedAt,
	)
	return pgWriteErr("put account", err)
}

func (t *pgTx) Append(ctx context.Context, eventType ledger.EventType, actor string, payload any) (*ledger.Entry, error) {
	// Held until commit or rollback.
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", chainLockKey); err != nil {
		return nil, fmt.Errorf("acquire chain lock: %w", err)
	}

	var prev *ledger.Entry
	tail := &ledger.Entry{}
	err := t.tx.QueryRow(ctx,
		"SELECT seq, current_hash FROM audit_entries ORDER BY seq DESC LIMIT 1",
	).Scan(&tail.Seq, &tail.CurrentHash)
	switch {
	case err == nil:
		prev = tail
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	e, err := ledger.Next(prev, eventType, actor, payload, t.now())
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO audit_entries (seq, event_type, actor, data, recorded_at, previous_hash, current_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.Seq, string(e.EventType), e.Actor, string(e.Data), e.Timestamp, e.PreviousHash, e.CurrentHash,
	); err != nil {
		return nil, pgWriteErr("insert audit entry", err)
	}

	t.logger.Debug("audit entry appended",
		zap.Int64("seq", e.Seq),
		zap.String("event_type", string(e.EventType)),
	)
	return e, nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgGetCrop(ctx context.Context, q pgQuerier, cropID string) (*model.Crop, error) {
	c, err := scanCrop(q.QueryRow(ctx, `SELECT `+pgCropColumns+` FROM crops WHERE crop_id = $1`, cropID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func pgWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanCrop(row pgx.Row) (*model.Crop, error) {
	var (
		c   model.Crop
		qty string
	)
	if err := row.Scan(&c.CropID, &c.CropType, &qty, &c.QualityGrade, &c.MandiID, &c.FarmerID, &c.RegisteredAt); err != nil {
		return nil, err
	}
	var err error
	if c.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("crop %s quantity: %w", c.CropID, err)
	}
	c.RegisteredAt = c.RegisteredAt.UTC()
	return &c, nil
}

func scanToken(row pgx.Row) (*model.Token, error) {
	var (
		t      model.Token
		status string
	)
	if err := row.Scan(&t.TokenID, &t.LinkedCropID, &t.OwnerID, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TokenStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func scanOneToken(row pgx.Row) (*model.Token, error) {
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return t, nil
}

func scanSettlement(row pgx.Row) (*model.Settlement, error) {
	var (
		s                 model.Settlement
		qty, price, total string
	)
	if err := row.Scan(
		&s.SettlementID, &s.TokenID, &s.SellerID, &s.BuyerID,
		&qty, &price, &total,
		&s.SettlementStatus, &s.SettlementTime, &s.WalletDebited,
	); err != nil {
		return nil, fmt.Errorf("scan settlement: %w", err)
	}
	var err error
	if s.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("settlement %s quantity: %w", s.SettlementID, err)
	}
	if s.PricePerKg, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("settlement %s price: %w", s.SettlementID, err)
	}
	if s.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("settlement %s total: %w", s.SettlementID, err)
	}
	s.SettlementTime = s.SettlementTime.UTC()
	return &s, nil
}

func scanOneAccount(row pgx.Row) (*model.Account, error) {
	var (
		a       model.Account
		balance string
	)
	err := row.Scan(&a.AccountID, &balance, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("account %s balance: %w", a.AccountID, err)
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var (
		e         ledger.Entry
		eventType string
		data      string
	)
	if err := row.Scan(&e.Seq, &eventType, &e.Actor, &data, &e.Timestamp, &e.PreviousHash, &e.CurrentHash); err != nil {
		return nil, err
	}
	e.EventType = ledger.EventType(eventType)
	e.Data = []byte(data)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
