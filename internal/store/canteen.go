package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/model"
)

// CanteenStore holds the menu catalog and customer orders.
type CanteenStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewCanteenStore(db *sql.DB) *CanteenStore {
	return &CanteenStore{db: db, now: time.Now}
}

const itemCols = `id, name, category, price, stock, available, created_at, updated_at`

func scanItem(scanner interface{ Scan(...any) error }) (*model.CanteenItem, error) {
	var it model.CanteenItem
	err := scanner.Scan(&it.ID, &it.Name, &it.Category, &it.Price, &it.Stock, &it.Available, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

const orderCols = `id, order_no, member_id, customer_name, customer_type, total, payment_mode, status, created_at, ready_at, done_at`

func scanOrder(scanner interface{ Scan(...any) error }) (*model.CanteenOrder, error) {
	var o model.CanteenOrder
	err := scanner.Scan(&o.ID, &o.OrderNo, nullInt64{&o.MemberID}, &o.CustomerName, &o.CustomerType,
		&o.Total, &o.PaymentMode, &o.Status, &o.CreatedAt, nullTime{&o.ReadyAt}, nullTime{&o.DoneAt})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListItems returns the catalog by category and name. With availableOnly set
// it leaves out items switched off or out of stock.
func (s *CanteenStore) ListItems(ctx context.Context, availableOnly bool) ([]model.CanteenItem, error) {
	query := `SELECT ` + itemCols + ` FROM canteen_items`
	if availableOnly {
		query += ` WHERE available = 1 AND stock > 0`
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list canteen items: %w", err)
	}
	defer rows.Close()

	var items []model.CanteenItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan canteen item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *CanteenStore) GetItem(ctx context.Context, id int64) (*model.CanteenItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM canteen_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get canteen item: %w", err)
	}
	return it, nil
}

func (s *CanteenStore) CreateItem(ctx context.Context, it *model.CanteenItem) (*model.CanteenItem, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO canteen_items (name, category, price, stock, available) VALUES (?, ?, ?, ?, ?)`,
		it.Name, it.Category, it.Price, it.Stock, it.Available,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert canteen item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItem(ctx, id)
}

// UpdateItem overwrites an item's editable fields. Returns nil, nil when the
// item does not exist and ErrDuplicate when the new name is taken.
func (s *CanteenStore) UpdateItem(ctx context.Context, it *model.CanteenItem) (*model.CanteenItem, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE canteen_items SET name = ?, category = ?, price = ?, stock = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		it.Name, it.Category, it.Price, it.Stock, it.Available, it.ID,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("update canteen item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetItem(ctx, it.ID)
}

// PlaceOrder writes an order in one transaction. build receives the catalog
// rows for itemIDs (missing ids are absent from the map) and fills in the
// order header and lines. The store assigns the daily order number, inserts
// header and lines, and takes each line's quantity off stock, stopping at 0.
func (s *CanteenStore) PlaceOrder(ctx context.Context, itemIDs []int64, build func(items map[int64]model.CanteenItem) (*model.CanteenOrder, error)) (*model.CanteenOrder, error) {
	var placed *model.CanteenOrder
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		items, err := itemsByID(ctx, tx, itemIDs)
		if err != nil {
			return err
		}
		o, err := build(items)
		if err != nil {
			return err
		}

		orderNo, err := s.nextOrderNo(ctx, tx)
		if err != nil {
			return err
		}

		var memberID any
		if o.MemberID != nil {
			memberID = *o.MemberID
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO canteen_orders (order_no, member_id, customer_name, customer_type, total, payment_mode, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderNo, memberID, o.CustomerName, o.CustomerType, o.Total, o.PaymentMode, model.OrderPreparing,
		)
		if err != nil {
			return fmt.Errorf("insert canteen order: %w", err)
		}
		orderID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for _, line := range o.Items {
			var itemID any
			if line.ItemID != nil {
				itemID = *line.ItemID
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO canteen_order_items (order_id, item_id, name, price, quantity, subtotal)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				orderID, itemID, line.Name, line.Price, line.Quantity, line.Subtotal,
			); err != nil {
				return fmt.Errorf("insert canteen order item: %w", err)
			}
			if line.ItemID == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE canteen_items SET stock = MAX(stock - ?, 0), updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				line.Quantity, *line.ItemID,
			); err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}

		placed, err = orderByID(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func itemsByID(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]model.CanteenItem, error) {
	items := make(map[int64]model.CanteenItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	rows, err := tx.QueryContext(ctx, `SELECT `+itemCols+` FROM canteen_items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query canteen items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan canteen item: %w", err)
		}
		items[it.ID] = *it
	}
	return items, rows.Err()
}

// nextOrderNo returns today's next YYYYMMDD-NNNN number. The write lock held
// by the transaction and the UNIQUE constraint keep it collision free.
func (s *CanteenStore) nextOrderNo(ctx context.Context, tx *sql.Tx) (string, error) {
	day := s.now().Format("20060102")
	var last int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(CAST(substr(order_no, 10) AS INTEGER)), 0) FROM canteen_orders WHERE order_no LIKE ?`,
		day+"-%",
	).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return fmt.Sprintf("%s-%04d", day, last+1), nil
}

func orderByID(ctx context.Context, tx *sql.Tx, id int64) (*model.CanteenOrder, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderCols+` FROM canteen_orders WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get canteen order: %w", err)
	}
	lines, err := orderItems(ctx, tx, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Items = lines[id]
	return o, nil
}

// orderItems loads the lines of every order in ids, keyed by order id.
func orderItems(ctx context.Context, q queryer, ids []int64) (map[int64][]model.CanteenOrderItem, error) {
	out := make(map[int64][]model.CanteenOrderItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, item_id, name, price, quantity, subtotal
		 FROM canteen_order_items WHERE order_id IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query canteen order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var li model.CanteenOrderItem
		if err := rows.Scan(&li.ID, &li.OrderID, nullInt64{&li.ItemID}, &li.Name, &li.Price, &li.Quantity, &li.Subtotal); err != nil {
			return nil, fmt.Errorf("scan canteen order item: %w", err)
		}
		out[li.OrderID] = append(out[li.OrderID], li)
	}
	return out, rows.Err()
}

func (s *CanteenStore) GetByOrderNo(ctx context.Context, orderNo string) (*model.CanteenOrder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM canteen_orders WHERE order_no = ?`, orderNo)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get canteen order: %w", err)
	}
	return o, nil
}

// SetReady moves a preparing order to ready. Orders already ready are
// re-stamped; done orders are left alone. Returns ErrNotFound when no order
// has the number.
func (s *CanteenStore) SetReady(ctx context.Context, orderNo string) (*model.CanteenOrder, error) {
	return s.transition(ctx, orderNo,
		`UPDATE canteen_orders SET status = 'ready', ready_at = CURRENT_TIMESTAMP
		 WHERE order_no = ? AND status != 'done'`)
}

// SetDone moves an order to done from any state, stamping done_at and filling
// ready_at if the order skipped ready.
func (s *CanteenStore) SetDone(ctx context.Context, orderNo string) (*model.CanteenOrder, error) {
	return s.transition(ctx, orderNo,
		`UPDATE canteen_orders SET status = 'done', done_at = CURRENT_TIMESTAMP,
		   ready_at = COALESCE(ready_at, CURRENT_TIMESTAMP)
		 WHERE order_no = ?`)
}

func (s *CanteenStore) transition(ctx context.Context, orderNo, update string) (*model.CanteenOrder, error) {
	var o *model.CanteenOrder
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM canteen_orders WHERE order_no = ?)`, orderNo).Scan(&exists); err != nil {
			return fmt.Errorf("check canteen order: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, update, orderNo); err != nil {
			return fmt.Errorf("update canteen order status: %w", err)
		}
		var err error
		o, err = scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderCols+` FROM canteen_orders WHERE order_no = ?`, orderNo))
		if err != nil {
			return fmt.Errorf("get canteen order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListPending returns orders not yet done, oldest first, each with its lines.
func (s *CanteenStore) ListPending(ctx context.Context) ([]model.CanteenOrder, error) {
	return s.listWithItems(ctx,
		`SELECT `+orderCols+` FROM canteen_orders WHERE status != 'done' ORDER BY created_at ASC, id ASC`)
}

// ListByMember returns a member's orders, newest first.
func (s *CanteenStore) ListByMember(ctx context.Context, memberID int64) ([]model.CanteenOrder, error) {
	return s.listWithItems(ctx,
		`SELECT `+orderCols+` FROM canteen_orders WHERE member_id = ? ORDER BY created_at DESC, id DESC`, memberID)
}

// ListCredit returns every order paid on credit, newest first.
func (s *CanteenStore) ListCredit(ctx context.Context) ([]model.CanteenOrder, error) {
	return s.listWithItems(ctx,
		`SELECT `+orderCols+` FROM canteen_orders WHERE payment_mode = 'credit' ORDER BY created_at DESC, id DESC`)
}

func (s *CanteenStore) listWithItems(ctx context.Context, query string, args ...any) ([]model.CanteenOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list canteen orders: %w", err)
	}
	var orders []model.CanteenOrder
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan canteen order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Lines are fetched after the cursor is released so a single-connection
	// pool is not asked for a second connection.
	rows.Close()

	lines, err := orderItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = lines[orders[i].ID]
	}
	return orders, nil
}
