package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
)

// sqlitePragmas make every transaction BEGIN IMMEDIATE, which takes the
// database write lock up front. That lock doubles as the chain tail lock.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// sqliteTimeLayout is fixed-width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteMigrations returns the schema statements. SQLite executes one
// statement at a time, so each string is a single statement.
func SQLiteMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS crops (
			ord            INTEGER PRIMARY KEY AUTOINCREMENT,
			crop_id        TEXT NOT NULL UNIQUE,
			crop_type      TEXT NOT NULL,
			quantity       TEXT NOT NULL,
			quality_grade  TEXT NOT NULL CHECK (quality_grade IN ('A', 'B', 'C')),
			mandi_id       TEXT NOT NULL,
			farmer_id      TEXT NOT NULL,
			registered_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			ord             INTEGER PRIMARY KEY AUTOINCREMENT,
			token_id        TEXT NOT NULL UNIQUE,
			linked_crop_id  TEXT NOT NULL UNIQUE REFERENCES crops (crop_id),
			owner_id        TEXT NOT NULL,
			status          TEXT NOT NULL CHECK (status IN ('CREATED', 'LISTED', 'SOLD')),
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tokens_status_idx ON tokens (status)`,
		`CREATE INDEX IF NOT EXISTS tokens_owner_idx ON tokens (owner_id)`,
		`CREATE TABLE IF NOT EXISTS settlements (
			ord                INTEGER PRIMARY KEY AUTOINCREMENT,
			settlement_id      TEXT NOT NULL UNIQUE,
			token_id           TEXT NOT NULL UNIQUE REFERENCES tokens (token_id),
			seller_id          TEXT NOT NULL,
			buyer_id           TEXT NOT NULL,
			quantity           TEXT NOT NULL,
			price_per_kg       TEXT NOT NULL,
			total_amount       TEXT NOT NULL,
			settlement_status  TEXT NOT NULL,
			settlement_time    TEXT NOT NULL,
			wallet_debited     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id  TEXT PRIMARY KEY,
			balance     TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			seq            INTEGER PRIMARY KEY CHECK (seq >= 1),
			event_type     TEXT NOT NULL,
			actor          TEXT NOT NULL,
			data           TEXT NOT NULL,
			recorded_at    TEXT NOT NULL,
			previous_hash  TEXT NOT NULL,
			current_hash   TEXT NOT NULL UNIQUE
		)`,
	}
}

const (
	sqliteCropColumns       = `crop_id, crop_type, quantity, quality_grade, mandi_id, farmer_id, registered_at`
	sqliteTokenColumns      = `token_id, linked_crop_id, owner_id, status, created_at, updated_at`
	sqliteSettlementColumns = `settlement_id, token_id, seller_id, buyer_id, quantity, price_per_kg,
		total_amount, settlement_status, settlement_time, wallet_debited`
	sqliteEntryColumns = `seq, event_type, actor, data, recorded_at, previous_hash, current_hash`
)

// SQLiteStore is a Store in a single SQLite file, for embedded single-node
// deployments. It uses the pure-Go modernc driver, so no cgo is required.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?"+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range SQLiteMigrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// SetClock overrides the clock used for audit timestamps.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// InTx implements Store.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTx{tx: tx, logger: s.logger, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetCrop implements Store.
func (s *SQLiteStore) GetCrop(ctx context.Context, cropID string) (*model.Crop, error) {
	return sqliteGetCrop(ctx, s.db, cropID)
}

// ListCrops implements Store.
func (s *SQLiteStore) ListCrops(ctx context.Context) ([]*model.Crop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteCropColumns+` FROM crops ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("list crops: %w", err)
	}
	defer rows.Close()

	crops := make([]*model.Crop, 0)
	for rows.Next() {
		c, err := sqliteScanCrop(rows)
		if err != nil {
			return nil, err
		}
		crops = append(crops, c)
	}
	return crops, rows.Err()
}

// GetToken implements Store.
func (s *SQLiteStore) GetToken(ctx context.Context, tokenID string) (*model.Token, error) {
	return sqliteGetToken(ctx, s.db, tokenID)
}

// ListTokens implements Store.
func (s *SQLiteStore) ListTokens(ctx context.Context, f TokenFilter) ([]*model.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteTokenColumns+` FROM tokens
		 WHERE (?1 = '' OR status = ?1)
		   AND (?2 = '' OR owner_id = ?2)
		 ORDER BY ord`,
		string(f.Status), f.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*model.Token, 0)
	for rows.Next() {
		t, err := sqliteScanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ListSettlements implements Store.
func (s *SQLiteStore) ListSettlements(ctx context.Context) ([]*model.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteSettlementColumns+` FROM settlements ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	settlements := make([]*model.Settlement, 0)
	for rows.Next() {
		st, err := sqliteScanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}
	return settlements, rows.Err()
}

// GetAccount implements Store.
func (s *SQLiteStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return sqliteGetAccount(ctx, s.db, accountID)
}

// Entries implements ledger.Ledger.
func (s *SQLiteStore) Entries(ctx context.Context) ([]*ledger.Entry, error) {
	entries := make([]*ledger.Entry, 0)
	err := s.walk(ctx, func(e *ledger.Entry) {
		entries = append(entries, e)
	})
	return entries, err
}

// Get implements ledger.Ledger.
func (s *SQLiteStore) Get(ctx context.Context, seq int64) (*ledger.Entry, error) {
	e, err := sqliteScanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteEntryColumns+` FROM audit_entries WHERE seq = ?`, seq))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit entry %d: %w", seq, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", seq, err)
	}
	return e, nil
}

// Len implements ledger.Ledger.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements ledger.Ledger.
func (s *SQLiteStore) Verify(ctx context.Context) (*ledger.Report, error) {
	v := ledger.NewVerifier()
	if err := s.walk(ctx, func(e *ledger.Entry) { v.Check(e) }); err != nil {
		return nil, err
	}
	return v.Report(), nil
}

// Root implements ledger.Ledger.
func (s *SQLiteStore) Root(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT current_hash FROM audit_entries ORDER BY seq DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}

func (s *SQLiteStore) walk(ctx context.Context, fn func(*ledger.Entry)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteEntryColumns+` FROM audit_entries ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := sqliteScanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		fn(e)
	}
	return rows.Err()
}

// sqliteTx implements Tx. The transaction already holds the database write
// lock, so reads "for update" are plain reads.
type sqliteTx struct {
	tx     *sql.Tx
	logger *zap.Logger
	now    func() time.Time
}

func (t *sqliteTx) GetCrop(ctx context.Context, cropID string) (*model.Crop, error) {
	return sqliteGetCrop(ctx, t.tx, cropID)
}

func (t *sqliteTx) GetTokenForUpdate(ctx context.Context, tokenID string) (*model.Token, error) {
	return sqliteGetToken(ctx, t.tx, tokenID)
}

func (t *sqliteTx) GetAccountForUpdate(ctx context.Context, accountID string) (*model.Account, error) {
	return sqliteGetAccount(ctx, t.tx, accountID)
}

func (t *sqliteTx) InsertCrop(ctx context.Context, c *model.Crop) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO crops (crop_id, crop_type, quantity, quality_grade, mandi_id, farmer_id, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.CropID, c.CropType, c.Quantity.String(), c.QualityGrade, c.MandiID, c.FarmerID,
		formatTime(c.RegisteredAt),
	)
	return sqliteWriteErr("insert crop", err)
}

func (t *sqliteTx) InsertToken(ctx context.Context, tok *model.Token) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tokens (token_id, linked_crop_id, owner_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tok.TokenID, tok.LinkedCropID, tok.OwnerID, string(tok.Status),
		formatTime(tok.CreatedAt), formatTime(tok.UpdatedAt),
	)
	return sqliteWriteErr("insert token", err)
}

func (t *sqliteTx) UpdateToken(ctx context.Context, tok *model.Token) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE tokens SET owner_id = ?, status = ?, updated_at = ? WHERE token_id = ?`,
		tok.OwnerID, string(tok.Status), formatTime(tok.UpdatedAt), tok.TokenID,
	)
	if err != nil {
		return sqliteWriteErr("update token", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update token %s: %w", tok.TokenID, ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO settlements (
			settlement_id, token_id, seller_id, buyer_id, quantity, price_per_kg,
			total_amount, settlement_status, settlement_time, wallet_debited
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SettlementID, st.TokenID, st.SellerID, st.BuyerID,
		st.Quantity.String(), st.PricePerKg.String(), st.TotalAmount.String(),
		st.SettlementStatus, formatTime(st.SettlementTime), st.WalletDebited,
	)
	return sqliteWriteErr("insert settlement", err)
}

func (t *sqliteTx) PutAccount(ctx context.Context, a *model.Account) error {
	if a.Balance.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s", a.AccountID, a.Balance)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (account_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		a.AccountID, a.Balance.String(), formatTime(a.UpdatedAt),
	)
	return sqliteWriteErr("put account", err)
}

func (t *sqliteTx) Append(ctx context.Context, eventType ledger.EventType, actor string, payload any) (*ledger.Entry, error) {
	var prev *ledger.Entry
	tail := &ledger.Entry{}
	err := t.tx.QueryRowContext(ctx,
		"SELECT seq, current_hash FROM audit_entries ORDER BY seq DESC LIMIT 1",
	).Scan(&tail.Seq, &tail.CurrentHash)
	switch {
	case err == nil:
		prev = tail
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	e, err := ledger.Next(prev, eventType, actor, payload, t.now())
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO audit_entries (seq, event_type, actor, data, recorded_at, previous_hash, current_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, string(e.EventType), e.Actor, string(e.Data), formatTime(e.Timestamp), e.PreviousHash, e.CurrentHash,
	); err != nil {
		return nil, sqliteWriteErr("insert audit entry", err)
	}

	t.logger.Debug("audit entry appended",
		zap.Int64("seq", e.Seq),
		zap.String("event_type", string(e.EventType)),
	)
	return e, nil
}

// sqliteQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteRow is satisfied by both *sql.Row and *sql.Rows.
type sqliteRow interface {
	Scan(dest ...any) error
}

func sqliteGetCrop(ctx context.Context, q sqliteQuerier, cropID string) (*model.Crop, error) {
	c, err := sqliteScanCrop(q.QueryRowContext(ctx,
		`SELECT `+sqliteCropColumns+` FROM crops WHERE crop_id = ?`, cropID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func sqliteGetToken(ctx context.Context, q sqliteQuerier, tokenID string) (*model.Token, error) {
	t, err := sqliteScanToken(q.QueryRowContext(ctx,
		`SELECT `+sqliteTokenColumns+` FROM tokens WHERE token_id = ?`, tokenID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func sqliteGetAccount(ctx context.Context, q sqliteQuerier, accountID string) (*model.Account, error) {
	var (
		a                  model.Account
		balance, updatedAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT account_id, balance, updated_at FROM accounts WHERE account_id = ?`, accountID,
	).Scan(&a.AccountID, &balance, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("account %s balance: %w", a.AccountID, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func sqliteWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sqliteScanCrop(row sqliteRow) (*model.Crop, error) {
	var (
		c                 model.Crop
		qty, registeredAt string
	)
	if err := row.Scan(&c.CropID, &c.CropType, &qty, &c.QualityGrade, &c.MandiID, &c.FarmerID, &registeredAt); err != nil {
		return nil, err
	}
	var err error
	if c.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("crop %s quantity: %w", c.CropID, err)
	}
	if c.RegisteredAt, err = parseTime(registeredAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func sqliteScanToken(row sqliteRow) (*model.Token, error) {
	var (
		t                    model.Token
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.TokenID, &t.LinkedCropID, &t.OwnerID, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TokenStatus(status)
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func sqliteScanSettlement(row sqliteRow) (*model.Settlement, error) {
	var (
		s                       model.Settlement
		qty, price, total, when string
	)
	if err := row.Scan(
		&s.SettlementID, &s.TokenID, &s.SellerID, &s.BuyerID,
		&qty, &price, &total,
		&s.SettlementStatus, &when, &s.WalletDebited,
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
	if s.SettlementTime, err = parseTime(when); err != nil {
		return nil, err
	}
	return &s, nil
}

func sqliteScanEntry(row sqliteRow) (*ledger.Entry, error) {
	var (
		e                      ledger.Entry
		eventType, data, stamp string
	)
	if err := row.Scan(&e.Seq, &eventType, &e.Actor, &data, &stamp, &e.PreviousHash, &e.CurrentHash); err != nil {
		return nil, err
	}
	e.EventType = ledger.EventType(eventType)
	e.Data = []byte(data)
	var err error
	if e.Timestamp, err = parseTime(stamp); err != nil {
		return nil, err
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return ledger.Timestamp(t).Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
