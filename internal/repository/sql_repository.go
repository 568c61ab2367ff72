package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rongwang/shinobu-server/internal/models"
)

// Queries is the set of storage operations available both on the pool and inside an atomic unit
type Queries interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id models.ActorID) (*models.User, error)
	AdjustBalance(ctx context.Context, id models.ActorID, delta int64) error
	WithdrawIncome(ctx context.Context, id models.ActorID, amount int64, prevWithdrawal, nextWithdrawal int64) error
	SetBirthday(ctx context.Context, id models.ActorID, birthday string) error
	ListBirthdaysDue(ctx context.Context, today string) ([]models.User, error)
	GrantBirthdayGift(ctx context.Context, id models.ActorID, amount int64, prevBirthday, nextBirthday string) error

	// Catalog operations
	GetRarities(ctx context.Context) ([]models.Rarity, error)
	GetRarity(ctx context.Context, value int) (*models.Rarity, error)
	GetCharacter(ctx context.Context, id int64) (*models.Character, error)
	ListActivePacks(ctx context.Context, today string) ([]models.Pack, error)
	GetDraftPool(ctx context.Context, packName string, rarity int) ([]models.DraftCandidate, error)
	UpsertRarity(ctx context.Context, rarity models.Rarity) error
	UpsertBatch(ctx context.Context, name string) error
	UpsertCharacter(ctx context.Context, character models.Character) error
	UpsertPack(ctx context.Context, pack models.Pack) error
	UpsertBatchInPack(ctx context.Context, bip models.BatchInPack) error

	// Waifu operations
	GetWaifu(ctx context.Context, id int64) (*models.Waifu, error)
	GetOwnedWaifu(ctx context.Context, owner models.ActorID, characterID int64) (*models.Waifu, error)
	ListWaifus(ctx context.Context, owner models.ActorID) ([]models.Waifu, error)
	CreateWaifu(ctx context.Context, owner models.ActorID, characterID int64, rarity int) (int64, error)
	SetWaifuOwner(ctx context.Context, id int64, owner models.ActorID) error
	SetWaifuRarity(ctx context.Context, id int64, rarity int) error
	DeleteWaifu(ctx context.Context, id int64) error
}

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	Queries

	// WithTx runs fn as one atomic unit. Any error returned by fn rolls back every statement it issued.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// SQLRepository implements the Repository interface on top of sqlx.
// It works with the postgres, pgx and sqlite drivers.
type SQLRepository struct {
	*queries
	db *sqlx.DB
}

// NewSQLRepository creates a new repository over an open database
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{
		queries: &queries{ext: db},
		db:      db,
	}
}

// GetDB returns the underlying database connection
func (r *SQLRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *SQLRepository) WithTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&queries{ext: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// queries runs statements against either the pool or an open transaction
type queries struct {
	ext sqlx.ExtContext
}

func (q *queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row
func (q *queries) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// User repository methods
func (q *queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, name, password, balance, last_withdrawal, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.LastWithdrawal == 0 {
		user.LastWithdrawal = user.CreatedAt.Unix()
	}

	err := q.get(ctx, &user.ID, query,
		user.Email, user.Name, user.Password, user.Balance, user.LastWithdrawal, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", user.Email, ErrUserExists)
	}
	if isCheckViolation(err) {
		return ErrInsufficientFunds
	}
	return err
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT * FROM users WHERE email = ?`

	var user models.User
	err := q.get(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (q *queries) GetUserByID(ctx context.Context, id models.ActorID) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = ?`

	var user models.User
	err := q.get(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	return &user, nil
}

// AdjustBalance adds delta to the user's balance. The users.balance CHECK constraint rejects
// negative results, which is reported as ErrInsufficientFunds.
func (q *queries) AdjustBalance(ctx context.Context, id models.ActorID, delta int64) error {
	err := q.execOne(ctx, `UPDATE users SET balance = balance + ? WHERE id = ?`, delta, id)
	switch {
	case err == nil:
		return nil
	case isCheckViolation(err):
		return fmt.Errorf("user %d: %w", id, ErrInsufficientFunds)
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	default:
		return err
	}
}

// WithdrawIncome credits passive income and moves last_withdrawal forward. It only applies while
// last_withdrawal still equals prevWithdrawal, so a concurrent withdrawal yields ErrNotFound instead of paying twice.
func (q *queries) WithdrawIncome(ctx context.Context, id models.ActorID, amount int64, prevWithdrawal, nextWithdrawal int64) error {
	return q.execOne(ctx,
		`UPDATE users SET balance = balance + ?, last_withdrawal = ? WHERE id = ? AND last_withdrawal = ?`,
		amount, nextWithdrawal, id, prevWithdrawal)
}

// SetBirthday stores the user's next birthday. It only applies while none is stored yet;
// otherwise, or for an unknown user, it returns ErrNotFound.
func (q *queries) SetBirthday(ctx context.Context, id models.ActorID, birthday string) error {
	err := q.execOne(ctx, `UPDATE users SET birthday = ? WHERE id = ? AND birthday IS NULL`, birthday, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("user %d without birthday: %w", id, ErrNotFound)
	}
	return err
}

// ListBirthdaysDue returns the users whose stored birthday is today or already behind it
func (q *queries) ListBirthdaysDue(ctx context.Context, today string) ([]models.User, error) {
	var users []models.User
	err := q.selectAll(ctx, &users,
		`SELECT * FROM users WHERE birthday IS NOT NULL AND birthday <= ? ORDER BY id ASC`, today)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GrantBirthdayGift credits amount and moves the birthday to nextBirthday. Like WithdrawIncome it only applies
// while the birthday still equals prevBirthday; a gift already granted elsewhere yields ErrNotFound.
func (q *queries) GrantBirthdayGift(ctx context.Context, id models.ActorID, amount int64, prevBirthday, nextBirthday string) error {
	return q.execOne(ctx,
		`UPDATE users SET balance = balance + ?, birthday = ? WHERE id = ? AND birthday = ?`,
		amount, nextBirthday, id, prevBirthday)
}

// Catalog repository methods
func (q *queries) GetRarities(ctx context.Context) ([]models.Rarity, error) {
	var rarities []models.Rarity
	if err := q.selectAll(ctx, &rarities, `SELECT * FROM rarities ORDER BY value ASC`); err != nil {
		return nil, err
	}
	return rarities, nil
}

func (q *queries) GetRarity(ctx context.Context, value int) (*models.Rarity, error) {
	var rarity models.Rarity
	err := q.get(ctx, &rarity, `SELECT * FROM rarities WHERE value = ?`, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rarity %d: %w", value, ErrNotFound)
		}
		return nil, err
	}
	return &rarity, nil
}

func (q *queries) GetCharacter(ctx context.Context, id int64) (*models.Character, error) {
	var character models.Character
	err := q.get(ctx, &character, `SELECT * FROM characters WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("character %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &character, nil
}

// ListActivePacks returns the packs whose [start_date, end_date] contains today (YYYY-MM-DD)
func (q *queries) ListActivePacks(ctx context.Context, today string) ([]models.Pack, error) {
	query := `
		SELECT * FROM packs
		WHERE start_date <= ? AND (end_date IS NULL OR end_date >= ?)
		ORDER BY name ASC
	`

	var packs []models.Pack
	if err := q.selectAll(ctx, &packs, query, today, today); err != nil {
		return nil, err
	}
	return packs, nil
}

// GetDraftPool returns the characters of the pack's batches whose own rarity does not exceed
// the drawn rarity, each weighted by its highest batch weight for that rarity.
func (q *queries) GetDraftPool(ctx context.Context, packName string, rarity int) ([]models.DraftCandidate, error) {
	query := `
		SELECT c.id, c.name, c.image_url, c.series, c.rarity, c.batch, MAX(b.weight) AS weight
		FROM characters c
		JOIN batch_in_pack b ON b.batch = c.batch
		WHERE b.pack = ? AND b.rarity = ? AND c.rarity <= ?
		GROUP BY c.id, c.name, c.image_url, c.series, c.rarity, c.batch
		ORDER BY c.id ASC
	`

	var pool []models.DraftCandidate
	if err := q.selectAll(ctx, &pool, query, packName, rarity, rarity); err != nil {
		return nil, err
	}
	return pool, nil
}

func (q *queries) UpsertRarity(ctx context.Context, r models.Rarity) error {
	_, err := q.exec(ctx, `
		INSERT INTO rarities (value, name, colour, weight, refund, upgrade_cost, auto_upgrade)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (value) DO UPDATE SET
			name = excluded.name, colour = excluded.colour, weight = excluded.weight,
			refund = excluded.refund, upgrade_cost = excluded.upgrade_cost, auto_upgrade = excluded.auto_upgrade
	`, r.Value, r.Name, r.Colour, r.Weight, r.Refund, r.UpgradeCost, r.AutoUpgrade)
	return err
}

func (q *queries) UpsertBatch(ctx context.Context, name string) error {
	_, err := q.exec(ctx, `INSERT INTO batches (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (q *queries) UpsertCharacter(ctx context.Context, c models.Character) error {
	_, err := q.exec(ctx, `
		INSERT INTO characters (id, name, image_url, series, rarity, batch)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, image_url = excluded.image_url, series = excluded.series,
			rarity = excluded.rarity, batch = excluded.batch
	`, c.ID, c.Name, c.ImageURL, c.Series, c.Rarity, c.Batch)
	return err
}

func (q *queries) UpsertPack(ctx context.Context, p models.Pack) error {
	_, err := q.exec(ctx, `
		INSERT INTO packs (name, cost, description, start_date, end_date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			cost = excluded.cost, description = excluded.description,
			start_date = excluded.start_date, end_date = excluded.end_date
	`, p.Name, p.Cost, p.Description, p.StartDate, p.EndDate)
	return err
}

func (q *queries) UpsertBatchInPack(ctx context.Context, b models.BatchInPack) error {
	_, err := q.exec(ctx, `
		INSERT INTO batch_in_pack (pack, batch, rarity, weight)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (pack, batch, rarity) DO UPDATE SET weight = excluded.weight
	`, b.Pack, b.Batch, b.Rarity, b.Weight)
	return err
}

// waifuRecord is the flattened join of a waifu with its character and rarity
type waifuRecord struct {
	ID            int64          `db:"id"`
	Owner         models.ActorID `db:"user_id"`
	CharacterID   int64          `db:"character_id"`
	CharacterName string         `db:"character_name"`
	ImageURL      *string        `db:"image_url"`
	Series        string         `db:"series"`
	BaseRarity    int            `db:"base_rarity"`
	Batch         string         `db:"batch"`
	RarityValue   int            `db:"rarity_value"`
	RarityName    string         `db:"rarity_name"`
	Colour        int            `db:"colour"`
	Weight        float64        `db:"weight"`
	Refund        int64          `db:"refund"`
	UpgradeCost   *int64         `db:"upgrade_cost"`
	AutoUpgrade   bool           `db:"auto_upgrade"`
}

func (r waifuRecord) toModel() models.Waifu {
	return models.Waifu{
		ID:    r.ID,
		Owner: r.Owner,
		Character: models.Character{
			ID:       r.CharacterID,
			Name:     r.CharacterName,
			ImageURL: r.ImageURL,
			Series:   r.Series,
			Rarity:   r.BaseRarity,
			Batch:    r.Batch,
		},
		Rarity: models.Rarity{
			Value:       r.RarityValue,
			Name:        r.RarityName,
			Colour:      r.Colour,
			Weight:      r.Weight,
			Refund:      r.Refund,
			UpgradeCost: r.UpgradeCost,
			AutoUpgrade: r.AutoUpgrade,
		},
	}
}

const waifuSelect = `
	SELECT w.id, w.user_id,
		c.id AS character_id, c.name AS character_name, c.image_url, c.series,
		c.rarity AS base_rarity, c.batch,
		r.value AS rarity_value, r.name AS rarity_name, r.colour, r.weight, r.refund,
		r.upgrade_cost, r.auto_upgrade
	FROM waifus w
	JOIN characters c ON c.id = w.character_id
	JOIN rarities r ON r.value = w.rarity
`

// Waifu repository methods
func (q *queries) GetWaifu(ctx context.Context, id int64) (*models.Waifu, error) {
	var rec waifuRecord
	err := q.get(ctx, &rec, waifuSelect+` WHERE w.id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("waifu %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	waifu := rec.toModel()
	return &waifu, nil
}

func (q *queries) GetOwnedWaifu(ctx context.Context, owner models.ActorID, characterID int64) (*models.Waifu, error) {
	var rec waifuRecord
	err := q.get(ctx, &rec, waifuSelect+` WHERE w.user_id = ? AND w.character_id = ?`, owner, characterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	waifu := rec.toModel()
	return &waifu, nil
}

// ListWaifus returns the owner's waifus, rarest first and then by character name
func (q *queries) ListWaifus(ctx context.Context, owner models.ActorID) ([]models.Waifu, error) {
	var recs []waifuRecord
	err := q.selectAll(ctx, &recs, waifuSelect+` WHERE w.user_id = ? ORDER BY r.value DESC, c.name ASC`, owner)
	if err != nil {
		return nil, err
	}

	waifus := make([]models.Waifu, 0, len(recs))
	for _, rec := range recs {
		waifus = append(waifus, rec.toModel())
	}
	return waifus, nil
}

func (q *queries) CreateWaifu(ctx context.Context, owner models.ActorID, characterID int64, rarity int) (int64, error) {
	var id int64
	err := q.get(ctx, &id,
		`INSERT INTO waifus (user_id, character_id, rarity) VALUES (?, ?, ?) RETURNING id`,
		owner, characterID, rarity)
	if isUniqueViolation(err) {
		return 0, ErrAlreadyOwned
	}
	return id, err
}

func (q *queries) SetWaifuOwner(ctx context.Context, id int64, owner models.ActorID) error {
	err := q.execOne(ctx, `UPDATE waifus SET user_id = ? WHERE id = ?`, owner, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %d: %w", owner, ErrAlreadyOwned)
	}
	return err
}

func (q *queries) SetWaifuRarity(ctx context.Context, id int64, rarity int) error {
	return q.execOne(ctx, `UPDATE waifus SET rarity = ? WHERE id = ?`, rarity, id)
}

func (q *queries) DeleteWaifu(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM waifus WHERE id = ?`, id)
}

var _ Repository = (*SQLRepository)(nil)
