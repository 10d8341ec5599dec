// Package canteen takes food orders from members and walk-in visitors and
// moves them through the kitchen: preparing, then ready, then done.
package canteen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/metrics"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
	"github.com/dukerupert/climbs/internal/websocket"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrItemNotFound  = errors.New("item not found")

	// ErrEmptyOrder carries its own customer-facing message.
	ErrEmptyOrder = model.Invalid("Your order is empty.")
)

// Broadcaster pushes order updates to connected displays.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Line is one requested menu item.
type Line struct {
	ItemID   int64
	Quantity int
}

// OrderRequest is what a customer submits at the counter or kiosk.
type OrderRequest struct {
	Items        []Line
	CustomerName string
	PaymentMode  model.PaymentMode
}

// ItemInput is the editable part of a menu item.
type ItemInput struct {
	Name      string
	Category  string
	Price     decimal.Decimal
	Stock     int
	Available bool
}

// Status is the public answer to an order status poll.
type Status struct {
	Found  bool              `json:"found"`
	Status model.OrderStatus `json:"status,omitempty"`
	ID     string            `json:"id,omitempty"`
}

type Service struct {
	store   *store.CanteenStore
	members *store.MemberStore
	hub     Broadcaster
	logger  *slog.Logger
}

func NewService(cs *store.CanteenStore, ms *store.MemberStore, hub Broadcaster, logger *slog.Logger) *Service {
	return &Service{store: cs, members: ms, hub: hub, logger: logger}
}

// Menu returns the items customers can order right now.
func (s *Service) Menu(ctx context.Context) ([]model.CanteenItem, error) {
	return s.store.ListItems(ctx, true)
}

// Items returns the whole catalog, including unavailable items.
func (s *Service) Items(ctx context.Context) ([]model.CanteenItem, error) {
	return s.store.ListItems(ctx, false)
}

func (s *Service) CreateItem(ctx context.Context, in ItemInput) (*model.CanteenItem, error) {
	if err := validateItem(&in); err != nil {
		return nil, err
	}
	it, err := s.store.CreateItem(ctx, &model.CanteenItem{
		Name: in.Name, Category: in.Category, Price: in.Price, Stock: in.Stock, Available: in.Available,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, model.Invalid("An item with that name already exists.")
	}
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(websocket.NewMessage("canteen_item", "created", it.ID, nil))
	return it, nil
}

func (s *Service) UpdateItem(ctx context.Context, id int64, in ItemInput) (*model.CanteenItem, error) {
	if err := validateItem(&in); err != nil {
		return nil, err
	}
	it, err := s.store.UpdateItem(ctx, &model.CanteenItem{
		ID: id, Name: in.Name, Category: in.Category, Price: in.Price, Stock: in.Stock, Available: in.Available,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, model.Invalid("An item with that name already exists.")
	}
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, ErrItemNotFound
	}
	s.hub.Broadcast(websocket.NewMessage("canteen_item", "updated", it.ID, nil))
	return it, nil
}

func validateItem(in *ItemInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return model.Invalid("Item name is required.")
	}
	if in.Price.IsNegative() {
		return model.Invalid("Price cannot be negative.")
	}
	if in.Stock < 0 {
		return model.Invalid("Stock cannot be negative.")
	}
	return nil
}

// Place records an order for caller. Signed-in members order under their own
// name and may pay on credit; everyone else is a visitor. Line prices and
// names are copied from the menu so later menu edits do not change the
// order. Each line takes its quantity off stock, stopping at zero.
func (s *Service) Place(ctx context.Context, caller auth.Caller, req OrderRequest) (*model.CanteenOrder, error) {
	lines, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}
	if req.PaymentMode == "" {
		req.PaymentMode = model.PaymentCash
	}
	if !req.PaymentMode.Valid() {
		return nil, model.Invalid("Unknown payment mode.")
	}
	if req.PaymentMode == model.PaymentCredit && !caller.IsMember() {
		return nil, model.Invalid("Credit is available to members only.")
	}

	header := model.CanteenOrder{
		CustomerType: model.CustomerVisitor,
		CustomerName: strings.TrimSpace(req.CustomerName),
		PaymentMode:  req.PaymentMode,
	}
	if caller.IsMember() {
		m, err := s.members.GetByID(ctx, caller.MemberID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			id := m.ID
			header.MemberID = &id
			header.CustomerType = model.CustomerMember
			header.CustomerName = m.FullName()
			if header.CustomerName == "" {
				header.CustomerName = m.UserID
			}
		}
	}
	if header.CustomerName == "" {
		header.CustomerName = "Visitor"
	}
	if header.MemberID == nil && header.PaymentMode == model.PaymentCredit {
		return nil, model.Invalid("Credit is available to members only.")
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	o, err := s.store.PlaceOrder(ctx, ids, func(items map[int64]model.CanteenItem) (*model.CanteenOrder, error) {
		o := header
		o.Total = decimal.Zero
		for _, l := range lines {
			it, ok := items[l.ItemID]
			if !ok {
				return nil, model.Invalid("One of the items is no longer on the menu.")
			}
			if !it.Available {
				return nil, model.Invalid(it.Name + " is not available.")
			}
			itemID := it.ID
			subtotal := it.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			o.Items = append(o.Items, model.CanteenOrderItem{
				ItemID:   &itemID,
				Name:     it.Name,
				Price:    it.Price,
				Quantity: l.Quantity,
				Subtotal: subtotal,
			})
			o.Total = o.Total.Add(subtotal)
		}
		return &o, nil
	})
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, fmt.Errorf("place order: %w", err)
	}

	metrics.RecordOrderPlaced(string(o.CustomerType), string(o.PaymentMode))
	s.logger.Info("canteen order placed", "order_no", o.OrderNo, "customer_type", o.CustomerType,
		"payment_mode", o.PaymentMode, "total", o.Total.String(), "lines", len(o.Items))
	s.hub.Broadcast(websocket.OrderMessage("placed", o.ID, o.OrderNo, map[string]any{
		"status":        o.Status,
		"customer_name": o.CustomerName,
	}))
	return o, nil
}

// mergeLines validates quantities and folds repeated items into one line,
// keeping first-seen order.
func mergeLines(in []Line) ([]Line, error) {
	if len(in) == 0 {
		return nil, ErrEmptyOrder
	}
	index := make(map[int64]int, len(in))
	var out []Line
	for _, l := range in {
		if l.Quantity < 1 {
			return nil, model.Invalid("Quantity must be at least 1.")
		}
		if i, ok := index[l.ItemID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ItemID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

// MarkReady moves an order to ready. Repeating it re-stamps ready_at; a done
// order stays done.
func (s *Service) MarkReady(ctx context.Context, orderNo string) (*model.CanteenOrder, error) {
	return s.transition(ctx, orderNo, "ready", s.store.SetReady)
}

// MarkDone moves an order to done from any state.
func (s *Service) MarkDone(ctx context.Context, orderNo string) (*model.CanteenOrder, error) {
	return s.transition(ctx, orderNo, "done", s.store.SetDone)
}

func (s *Service) transition(ctx context.Context, orderNo, action string, apply func(context.Context, string) (*model.CanteenOrder, error)) (*model.CanteenOrder, error) {
	o, err := apply(ctx, orderNo)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordOrderTransition(string(o.Status))
	s.logger.Info("canteen order status changed", "order_no", o.OrderNo, "action", action, "status", o.Status)
	s.hub.Broadcast(websocket.OrderMessage(action, o.ID, o.OrderNo, map[string]any{"status": o.Status}))
	return o, nil
}

// Status answers a customer's poll for one order.
func (s *Service) Status(ctx context.Context, orderNo string) (Status, error) {
	o, err := s.store.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return Status{}, err
	}
	if o == nil {
		return Status{Found: false}, nil
	}
	return Status{Found: true, Status: o.Status, ID: strconv.FormatInt(o.ID, 10)}, nil
}

// Pending is the kitchen queue: orders not yet done, oldest first.
func (s *Service) Pending(ctx context.Context) ([]model.CanteenOrder, error) {
	return s.store.ListPending(ctx)
}

func (s *Service) MemberOrders(ctx context.Context, memberID int64) ([]model.CanteenOrder, error) {
	return s.store.ListByMember(ctx, memberID)
}

// CreditOrders lists orders charged to members' accounts for reconciliation.
func (s *Service) CreditOrders(ctx context.Context) ([]model.CanteenOrder, error) {
	return s.store.ListCredit(ctx)
}
