// Package storage persists groups, accounts and derived balance
// snapshots in SQLite. The engine itself has no storage format; this
// package loads a full group snapshot before a mutation and writes the
// post-mutation state back transactionally.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"tricount/internal/auth"
	"tricount/internal/core"
)

// Ensure the repository satisfies the authenticator's storage interface.
var _ auth.AccountStorage = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

// GroupSummary is the listing shape: group metadata plus member and
// expense counts, without loading the full snapshot.
type GroupSummary struct {
	ID            string
	Name          string
	Currency      core.Currency
	MembersCount  int
	ExpensesCount int
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// The _pragma DSN option applies to every pooled connection, not
	// just the one a plain Exec would hit.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a *auth.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.getAccount(ctx, `SELECT id, name, email, password_hash, created_at FROM accounts WHERE email = ?`, email)
}

func (r *SQLiteRepository) GetAccountByID(ctx context.Context, id string) (*auth.Account, error) {
	return r.getAccount(ctx, `SELECT id, name, email, password_hash, created_at FROM accounts WHERE id = ?`, id)
}

func (r *SQLiteRepository) getAccount(ctx context.Context, query, arg string) (*auth.Account, error) {
	var a auth.Account
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "account", ID: arg}
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}

// --- groups ---

// CreateGroup persists a freshly created (empty) group.
func (r *SQLiteRepository) CreateGroup(ctx context.Context, g *core.Group) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, currency, owner_auth_id, version, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		g.ID, g.Name, string(g.Currency), g.OwnerAuthID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// GetGroup loads a full group snapshot: metadata, ordered members and
// ordered expenses with participants and weights.
func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (*core.Group, error) {
	g := &core.Group{}
	var currency string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, currency, owner_auth_id FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &currency, &g.OwnerAuthID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "group", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("select group: %w", err)
	}
	g.Currency = core.Currency(currency)

	if g.Members, err = r.loadMembers(ctx, id); err != nil {
		return nil, err
	}
	if g.Expenses, err = r.loadExpenses(ctx, id); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *SQLiteRepository) loadMembers(ctx context.Context, groupID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, auth_id FROM members WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.AuthID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *SQLiteRepository) loadExpenses(ctx context.Context, groupID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, description, amount_cents, payer_id FROM expenses WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("select expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	index := make(map[string]int)
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.PayerID); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		index[e.ID] = len(expenses)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.db.QueryContext(ctx,
		`SELECT ep.expense_id, ep.member_id, ep.weight
		 FROM expense_participants ep
		 JOIN expenses e ON e.id = ep.expense_id
		 WHERE e.group_id = ?
		 ORDER BY e.position, ep.member_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var expenseID, memberID string
		var weight sql.NullString
		if err := prows.Scan(&expenseID, &memberID, &weight); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		i, ok := index[expenseID]
		if !ok {
			continue
		}
		expenses[i].ParticipantIDs = append(expenses[i].ParticipantIDs, memberID)
		if weight.Valid {
			w, err := decimal.NewFromString(weight.String)
			if err != nil {
				return nil, fmt.Errorf("parse weight %q: %w", weight.String, err)
			}
			if expenses[i].Weights == nil {
				expenses[i].Weights = make(map[string]decimal.Decimal)
			}
			expenses[i].Weights[memberID] = w
		}
	}
	return expenses, prows.Err()
}

// SaveGroup writes the post-mutation state of a group back in one
// transaction, replacing members and expenses and bumping the group
// version. Returns the new version.
func (r *SQLiteRepository) SaveGroup(ctx context.Context, g *core.Group) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE groups SET name = ?, currency = ?, version = version + 1 WHERE id = ?`,
		g.Name, string(g.Currency), g.ID)
	if err != nil {
		return 0, fmt.Errorf("update group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, &core.NotFoundError{Kind: "group", ID: g.ID}
	}

	// Replace members and expenses wholesale; groups are small and the
	// snapshot is the unit of persistence.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM expense_participants WHERE expense_id IN (SELECT id FROM expenses WHERE group_id = ?)`, g.ID); err != nil {
		return 0, fmt.Errorf("delete participants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE group_id = ?`, g.ID); err != nil {
		return 0, fmt.Errorf("delete expenses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE group_id = ?`, g.ID); err != nil {
		return 0, fmt.Errorf("delete members: %w", err)
	}

	for i, m := range g.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO members (id, group_id, name, email, auth_id, position) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, g.ID, m.Name, m.Email, m.AuthID, i); err != nil {
			return 0, fmt.Errorf("insert member: %w", err)
		}
	}
	for i, e := range g.Expenses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, group_id, description, amount_cents, payer_id, position) VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, g.ID, e.Description, e.Amount.Cents, e.PayerID, i); err != nil {
			return 0, fmt.Errorf("insert expense: %w", err)
		}
		for _, pid := range e.ParticipantIDs {
			var weight any
			if w, ok := e.Weights[pid]; ok {
				weight = w.String()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO expense_participants (expense_id, member_id, weight) VALUES (?, ?, ?)`,
				e.ID, pid, weight); err != nil {
				return 0, fmt.Errorf("insert participant: %w", err)
			}
		}
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM groups WHERE id = ?`, g.ID).Scan(&version); err != nil {
		return 0, fmt.Errorf("select version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

// DeleteGroup removes a group and all dependent rows.
func (r *SQLiteRepository) DeleteGroup(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Kind: "group", ID: id}
	}
	return nil
}

// ListGroups returns summaries of the groups visible to the account:
// those it owns and those where a member is linked to it.
func (r *SQLiteRepository) ListGroups(ctx context.Context, authID string) ([]GroupSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.currency,
		        (SELECT COUNT(*) FROM members m WHERE m.group_id = g.id),
		        (SELECT COUNT(*) FROM expenses e WHERE e.group_id = g.id)
		 FROM groups g
		 WHERE g.owner_auth_id = ?
		    OR EXISTS (SELECT 1 FROM members m WHERE m.group_id = g.id AND m.auth_id = ?)
		 ORDER BY g.created_at, g.id`, authID, authID)
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	defer rows.Close()

	var out []GroupSummary
	for rows.Next() {
		var s GroupSummary
		var currency string
		if err := rows.Scan(&s.ID, &s.Name, &currency, &s.MembersCount, &s.ExpensesCount); err != nil {
			return nil, fmt.Errorf("scan group summary: %w", err)
		}
		s.Currency = core.Currency(currency)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GroupVersion returns the current mutation version of the group.
func (r *SQLiteRepository) GroupVersion(ctx context.Context, id string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM groups WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &core.NotFoundError{Kind: "group", ID: id}
	}
	if err != nil {
		return 0, fmt.Errorf("select version: %w", err)
	}
	return version, nil
}

// --- balance snapshots ---

// ReplaceBalanceSnapshots swaps the derived balance rows of one group
// for the given ledger version.
func (r *SQLiteRepository) ReplaceBalanceSnapshots(ctx context.Context, groupID string, version int64, balances map[string]core.Money) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM balance_snapshots WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	now := time.Now().Unix()
	for memberID, balance := range balances {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balance_snapshots (group_id, member_id, balance_cents, version, updated_at) VALUES (?, ?, ?, ?, ?)`,
			groupID, memberID, balance.Cents, version, now); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetBalanceSnapshots returns the persisted balances of a group and the
// ledger version they were derived from.
func (r *SQLiteRepository) GetBalanceSnapshots(ctx context.Context, groupID string) (map[string]core.Money, int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, balance_cents, version FROM balance_snapshots WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, 0, fmt.Errorf("select snapshots: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]core.Money)
	var version int64
	for rows.Next() {
		var memberID string
		var cents int64
		if err := rows.Scan(&memberID, &cents, &version); err != nil {
			return nil, 0, fmt.Errorf("scan snapshot: %w", err)
		}
		balances[memberID] = core.Money{Cents: cents}
	}
	return balances, version, rows.Err()
}

// StaleSnapshotGroups lists groups whose snapshots lag behind the
// current ledger version, for the worker's periodic reconcile pass.
func (r *SQLiteRepository) StaleSnapshotGroups(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id FROM groups g
		 WHERE NOT EXISTS (
		     SELECT 1 FROM balance_snapshots s
		     WHERE s.group_id = g.id AND s.version = g.version
		 )
		 AND EXISTS (SELECT 1 FROM members m WHERE m.group_id = g.id)
		 ORDER BY g.created_at, g.id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
