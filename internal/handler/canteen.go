package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/canteen"
	"github.com/dukerupert/climbs/internal/model"
)

type CanteenHandler struct {
	svc    *canteen.Service
	logger *slog.Logger
}

func NewCanteenHandler(svc *canteen.Service, logger *slog.Logger) *CanteenHandler {
	return &CanteenHandler{svc: svc, logger: logger}
}

func (h *CanteenHandler) Menu(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Menu(r.Context())
	writeList(w, h.logger, "canteen menu", items, err)
}

type orderRequest struct {
	Items []struct {
		ItemID   int64   `json:"item_id" validate:"required"`
		Quantity formInt `json:"quantity"`
	} `json:"items" validate:"dive"`
	CustomerName string `json:"customer_name" validate:"max=100"`
	PaymentMode  string `json:"payment_mode" validate:"omitempty,oneof=cash gcash credit"`
}

// PlaceOrder takes an order from a signed-in member or a walk-in visitor.
func (h *CanteenHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "place order", err)
		return
	}
	lines := make([]canteen.Line, len(req.Items))
	for i, it := range req.Items {
		lines[i] = canteen.Line{ItemID: it.ItemID, Quantity: int(it.Quantity)}
	}

	o, err := h.svc.Place(r.Context(), auth.CallerFrom(r.Context()), canteen.OrderRequest{
		Items:        lines,
		CustomerName: req.CustomerName,
		PaymentMode:  model.PaymentMode(req.PaymentMode),
	})
	if err != nil {
		writeError(w, h.logger, "place order", err)
		return
	}
	writeOK(w, map[string]any{
		"orderNo": o.OrderNo,
		"id":      strconv.FormatInt(o.ID, 10),
		"total":   o.Total,
		"status":  o.Status,
	})
}

// OrderStatus is the public poll for one order. Lookup failures read as
// not found.
func (h *CanteenHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), r.PathValue("orderNo"))
	if err != nil {
		h.logger.Error("order status", "error", err)
		st = canteen.Status{Found: false}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CanteenHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.MemberOrders(r.Context(), auth.MemberID(r.Context()))
	writeList(w, h.logger, "member orders", orders, err)
}

func (h *CanteenHandler) Pending(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Pending(r.Context())
	writeList(w, h.logger, "pending orders", orders, err)
}

func (h *CanteenHandler) Credit(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.CreditOrders(r.Context())
	writeList(w, h.logger, "credit orders", orders, err)
}

func (h *CanteenHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.MarkReady(r.Context(), r.PathValue("orderNo"))
	if err != nil {
		writeError(w, h.logger, "mark order ready", err)
		return
	}
	writeOK(w, map[string]any{"status": o.Status})
}

func (h *CanteenHandler) MarkDone(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.MarkDone(r.Context(), r.PathValue("orderNo"))
	if err != nil {
		writeError(w, h.logger, "mark order done", err)
		return
	}
	writeOK(w, map[string]any{"status": o.Status})
}

func (h *CanteenHandler) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Items(r.Context())
	writeList(w, h.logger, "canteen items", items, err)
}

type itemRequest struct {
	Name      string      `json:"name" validate:"required"`
	Category  string      `json:"category"`
	Price     formDecimal `json:"price"`
	Stock     formInt     `json:"stock"`
	Available *bool       `json:"available"`
}

func (req *itemRequest) input() canteen.ItemInput {
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	return canteen.ItemInput{
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price.Decimal,
		Stock:     int(req.Stock),
		Available: available,
	}
}

func (h *CanteenHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "create item", err)
		return
	}
	it, err := h.svc.CreateItem(r.Context(), req.input())
	if err != nil {
		writeError(w, h.logger, "create item", err)
		return
	}
	writeOK(w, map[string]any{"item": it})
}

func (h *CanteenHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "id")
	if !ok {
		writeError(w, h.logger, "update item", canteen.ErrItemNotFound)
		return
	}
	var req itemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "update item", err)
		return
	}
	it, err := h.svc.UpdateItem(r.Context(), id, req.input())
	if err != nil {
		writeError(w, h.logger, "update item", err)
		return
	}
	writeOK(w, map[string]any{"item": it})
}
