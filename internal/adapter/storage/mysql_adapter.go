package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	errDuplicateEntry   = 1062
	errRowIsReferenced  = 1451
	errNoReferencedRow  = 1452
	errLockWaitTimeout  = 1205
	errDeadlockDetected = 1213
)

const (
	itemColumns      = `id, code, description, kind, unit, min_stock, stock, unit_value, version, created_at, updated_at`
	movementColumns  = `seq, id, item_id, kind, quantity, user_id, note, stock_before, stock_after, created_at`
	componentColumns = `movement_id, item_id, item_code, quantity`
	recipeColumns    = `finished_good_id, raw_material_id, quantity_per_unit`
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// classify maps driver errors that mean "try again" onto domain.ErrConflict.
func classify(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errDeadlockDetected, errLockWaitTimeout:
			return fmt.Errorf("%w: %s", domain.ErrConflict, mysqlErr.Message)
		}
	}
	return err
}

func isMySQLError(err error, number uint16) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Code, &item.Description, &item.Kind, &item.Unit,
		&item.MinStock, &item.Stock, &item.UnitValue, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanMovement(row rowScanner) (domain.Movement, error) {
	var (
		m    domain.Movement
		note sql.NullString
	)
	err := row.Scan(&m.Sequence, &m.ID, &m.ItemID, &m.Kind, &m.Quantity, &m.UserID, &note,
		&m.StockBefore, &m.StockAfter, &m.CreatedAt)
	m.Note = note.String
	return m, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ---- items ----

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY description, code`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := scanItem(m.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`,
		item.ID, item.Code, item.Description, item.Kind, item.Unit,
		item.MinStock, item.UnitValue, item.CreatedAt, item.UpdatedAt,
	)
	if isMySQLError(err, errDuplicateEntry) {
		return domain.NewValidationError("code", "is already used by another item", domain.ErrDuplicateCode)
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateItem(ctx context.Context, item domain.Item) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE items
		SET code = ?, description = ?, unit = ?, min_stock = ?, unit_value = ?, updated_at = ?
		WHERE id = ?`,
		item.Code, item.Description, item.Unit, item.MinStock, item.UnitValue, item.UpdatedAt, item.ID,
	)
	if isMySQLError(err, errDuplicateEntry) {
		return domain.NewValidationError("code", "is already used by another item", domain.ErrDuplicateCode)
	}
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	// MySQL reports zero affected rows when nothing changed, so confirm existence.
	if rows, _ := result.RowsAffected(); rows == 0 {
		existing, err := m.GetItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NewItemNotFound(item.ID)
		}
	}
	return nil
}

// DeleteItem locks the item row before checking references, so recipe or
// ledger rows inserted concurrently wait on the lock until the delete settles.
func (m *MySQLAdapter) DeleteItem(ctx context.Context, id string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM items WHERE id = ? FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewItemNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", err)
	}

	var recipes, movements int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recipe_components
		WHERE finished_good_id = ? OR raw_material_id = ?`, id, id,
	).Scan(&recipes); err != nil {
		return fmt.Errorf("count recipe references: %w", err)
	}
	if recipes > 0 {
		return domain.NewValidationError("id", "is used by a recipe", domain.ErrItemInUse)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM movements WHERE item_id = ?`, id).Scan(&movements); err != nil {
		return fmt.Errorf("count ledger references: %w", err)
	}
	if movements > 0 {
		return domain.NewValidationError("id", "is referenced by the ledger", domain.ErrItemInUse)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		if isMySQLError(err, errRowIsReferenced) {
			return domain.NewValidationError("id", "is referenced", domain.ErrItemInUse)
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return tx.Commit()
}

// ---- ledger ----

func (m *MySQLAdapter) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	var (
		conditions = []string{"1=1"}
		args       []any
	)
	if filter.ItemID != "" {
		conditions = append(conditions, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	args = append(args, filter.EffectiveLimit())

	return m.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY seq DESC
		LIMIT ?`, args...)
}

func (m *MySQLAdapter) ReplayMovements(ctx context.Context, itemID string) ([]domain.Movement, error) {
	return m.queryMovements(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE item_id = ?
		ORDER BY seq ASC`, itemID)
}

func (m *MySQLAdapter) queryMovements(ctx context.Context, query string, args ...any) ([]domain.Movement, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var (
		movements  []domain.Movement
		production []string
	)
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		if mv.Kind == domain.MovementProduction {
			production = append(production, mv.ID)
		}
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}

	if len(production) == 0 {
		return movements, nil
	}
	components, err := m.loadComponents(ctx, production)
	if err != nil {
		return nil, err
	}
	for i := range movements {
		movements[i].Components = components[movements[i].ID]
	}
	return movements, nil
}

func (m *MySQLAdapter) loadComponents(ctx context.Context, movementIDs []string) (map[string][]domain.ConsumedComponent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+componentColumns+` FROM movement_components
		WHERE movement_id IN (`+placeholders(len(movementIDs))+`)
		ORDER BY movement_id, position`, toArgs(movementIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query movement components: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.ConsumedComponent, len(movementIDs))
	for rows.Next() {
		var (
			movementID string
			c          domain.ConsumedComponent
		)
		if err := rows.Scan(&movementID, &c.ItemID, &c.ItemCode, &c.Quantity); err != nil {
			return nil, fmt.Errorf("scan movement component: %w", err)
		}
		out[movementID] = append(out[movementID], c)
	}
	return out, rows.Err()
}

// ---- recipes ----

func scanRecipeRows(rows *sql.Rows) ([]domain.RecipeRow, error) {
	defer rows.Close()

	var out []domain.RecipeRow
	for rows.Next() {
		var (
			r           domain.RecipeRow
			rawMaterial sql.NullString
		)
		if err := rows.Scan(&r.FinishedGoodID, &rawMaterial, &r.QuantityPerUnit); err != nil {
			return nil, fmt.Errorf("scan recipe row: %w", err)
		}
		if rawMaterial.Valid {
			id := rawMaterial.String
			r.RawMaterialID = &id
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) RecipeRows(ctx context.Context, finishedGoodID string) ([]domain.RecipeRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+recipeColumns+` FROM recipe_components
		WHERE finished_good_id = ?
		ORDER BY position`, finishedGoodID)
	if err != nil {
		return nil, fmt.Errorf("query recipe: %w", err)
	}
	return scanRecipeRows(rows)
}

func (m *MySQLAdapter) AllRecipeRows(ctx context.Context) ([]domain.RecipeRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+recipeColumns+` FROM recipe_components
		ORDER BY finished_good_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	return scanRecipeRows(rows)
}

// ReplaceRecipe deletes and re-inserts the component set in one transaction,
// so a failed insert leaves the previous recipe in place.
func (m *MySQLAdapter) ReplaceRecipe(ctx context.Context, finishedGoodID string, components []domain.RecipeComponent) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_components WHERE finished_good_id = ?`, finishedGoodID); err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}

	for i, c := range components {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_components (finished_good_id, raw_material_id, quantity_per_unit, position)
			VALUES (?, ?, ?, ?)`,
			finishedGoodID, c.RawMaterialID, c.QuantityPerUnit, i,
		)
		if isMySQLError(err, errNoReferencedRow) {
			return domain.NewItemNotFound(c.RawMaterialID)
		}
		if err != nil {
			return fmt.Errorf("insert recipe component: %w", err)
		}
	}

	return tx.Commit()
}

// ---- posting ----

func (m *MySQLAdapter) WithinPostingTx(ctx context.Context, fn func(ctx context.Context, tx port.PostingTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewPersistenceError("begin tx", classify(err))
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlPostingTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.NewPersistenceError("commit posting", classify(err))
	}
	return nil
}

type mysqlPostingTx struct {
	tx *sql.Tx
}

// LockItems locks rows in id order so that concurrent postings touching
// overlapping items always acquire their locks in the same sequence.
func (t *mysqlPostingTx) LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	unique := make(map[string]struct{}, len(ids))
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := unique[id]; ok {
			continue
		}
		unique[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make(map[string]domain.Item, len(sorted))
	if len(sorted) == 0 {
		return out, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE id IN (`+placeholders(len(sorted))+`)
		ORDER BY id
		FOR UPDATE`, toArgs(sorted)...)
	if err != nil {
		return nil, fmt.Errorf("lock items: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock items: %w", classify(err))
	}
	return out, nil
}

// RecipeRows reads with a shared lock so the recipe cannot be replaced
// while the posting is in flight.
func (t *mysqlPostingTx) RecipeRows(ctx context.Context, finishedGoodID string) ([]domain.RecipeRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+recipeColumns+` FROM recipe_components
		WHERE finished_good_id = ?
		ORDER BY position
		LOCK IN SHARE MODE`, finishedGoodID)
	if err != nil {
		return nil, fmt.Errorf("query recipe: %w", classify(err))
	}
	return scanRecipeRows(rows)
}

func (t *mysqlPostingTx) ApplyMovement(ctx context.Context, item domain.Item, mv *domain.Movement) error {
	var note any
	if mv.Note != "" {
		note = mv.Note
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO movements (id, item_id, kind, quantity, user_id, note, stock_before, stock_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.ItemID, mv.Kind, mv.Quantity, mv.UserID, note, mv.StockBefore, mv.StockAfter, mv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", classify(err))
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("movement sequence: %w", err)
	}
	mv.Sequence = seq

	for i, c := range mv.Components {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO movement_components (movement_id, item_id, item_code, quantity, position)
			VALUES (?, ?, ?, ?, ?)`,
			mv.ID, c.ItemID, c.ItemCode, c.Quantity, i,
		); err != nil {
			return fmt.Errorf("insert movement component: %w", classify(err))
		}
	}

	result, err = t.tx.ExecContext(ctx, `
		UPDATE items
		SET stock = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		mv.StockAfter, mv.CreatedAt, item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", classify(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConflict
	}
	return nil
}
