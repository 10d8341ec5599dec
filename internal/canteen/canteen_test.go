package canteen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
	"github.com/dukerupert/climbs/internal/websocket"
)

type recorder struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (r *recorder) Broadcast(msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

type fixture struct {
	svc     *Service
	hub     *recorder
	members *store.MemberStore
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:", 1)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := fixture{hub: &recorder{}, members: store.NewMemberStore(db)}
	f.svc = NewService(store.NewCanteenStore(db), f.members, f.hub, slog.Default())
	return f
}

func addItem(t *testing.T, f fixture, name, price string, stock int, available bool) *model.CanteenItem {
	t.Helper()
	it, err := f.svc.CreateItem(context.Background(), ItemInput{
		Name: name, Category: "Meals", Price: decimal.RequireFromString(price), Stock: stock, Available: available,
	})
	if err != nil {
		t.Fatalf("create item %s: %v", name, err)
	}
	return it
}

func TestPlaceVisitorOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adobo := addItem(t, f, "Adobo", "65.00", 10, true)
	rice := addItem(t, f, "Rice", "15.50", 1, true)

	o, err := f.svc.Place(ctx, auth.Caller{}, OrderRequest{
		Items: []Line{{ItemID: adobo.ID, Quantity: 1}, {ItemID: rice.ID, Quantity: 2}, {ItemID: adobo.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.CustomerType != model.CustomerVisitor || o.CustomerName != "Visitor" {
		t.Errorf("customer = %q %q", o.CustomerType, o.CustomerName)
	}
	if o.PaymentMode != model.PaymentCash || o.Status != model.OrderPreparing {
		t.Errorf("mode=%q status=%q", o.PaymentMode, o.Status)
	}
	if len(o.Items) != 2 {
		t.Fatalf("lines = %d, want duplicates merged into 2", len(o.Items))
	}
	if o.Items[0].Quantity != 2 || !o.Items[0].Subtotal.Equal(decimal.RequireFromString("130")) {
		t.Errorf("adobo line = %+v", o.Items[0])
	}
	if want := decimal.RequireFromString("161"); !o.Total.Equal(want) {
		t.Errorf("total = %s, want %s", o.Total, want)
	}

	menu, err := f.svc.Menu(ctx)
	if err != nil {
		t.Fatalf("menu: %v", err)
	}
	if len(menu) != 1 || menu[0].Name != "Adobo" || menu[0].Stock != 8 {
		t.Errorf("menu after order = %+v, want rice sold out and 8 adobo", menu)
	}

	got := f.hub.types()
	if last := got[len(got)-1]; last != "canteen_order_placed" {
		t.Errorf("last broadcast = %q", last)
	}
}

func TestPlaceMemberOrderOnCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	it := addItem(t, f, "Pancit", "50", 5, true)

	m, err := f.members.Create(ctx, "APP-1", "u1", "hash")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := f.members.SubmitForm(ctx, m.ID, model.MemberProfile{FirstName: "Juan", LastName: "Cruz"}, nil,
		func(model.FormStatus) error { return nil }); err != nil {
		t.Fatalf("submit form: %v", err)
	}

	caller := auth.Caller{MemberID: m.ID, MemberUserID: "u1"}
	o, err := f.svc.Place(ctx, caller, OrderRequest{
		Items:        []Line{{ItemID: it.ID, Quantity: 1}},
		CustomerName: "someone else",
		PaymentMode:  model.PaymentCredit,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.CustomerType != model.CustomerMember || o.CustomerName != "Juan Cruz" {
		t.Errorf("customer = %q %q", o.CustomerType, o.CustomerName)
	}
	if o.MemberID == nil || *o.MemberID != m.ID {
		t.Errorf("member id = %v", o.MemberID)
	}

	mine, err := f.svc.MemberOrders(ctx, m.ID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("member orders = %d, %v", len(mine), err)
	}
	credit, err := f.svc.CreditOrders(ctx)
	if err != nil || len(credit) != 1 || credit[0].OrderNo != o.OrderNo {
		t.Errorf("credit orders = %+v, %v", credit, err)
	}
}

func TestPlaceRejects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	on := addItem(t, f, "Adobo", "65", 3, true)
	off := addItem(t, f, "Sinigang", "80", 3, false)

	cases := []struct {
		name   string
		caller auth.Caller
		req    OrderRequest
	}{
		{"empty", auth.Caller{}, OrderRequest{}},
		{"zero quantity", auth.Caller{}, OrderRequest{Items: []Line{{ItemID: on.ID, Quantity: 0}}}},
		{"unknown item", auth.Caller{}, OrderRequest{Items: []Line{{ItemID: 999, Quantity: 1}}}},
		{"unavailable item", auth.Caller{}, OrderRequest{Items: []Line{{ItemID: off.ID, Quantity: 1}}}},
		{"bad payment mode", auth.Caller{}, OrderRequest{Items: []Line{{ItemID: on.ID, Quantity: 1}}, PaymentMode: "barter"}},
		{"visitor credit", auth.Caller{}, OrderRequest{Items: []Line{{ItemID: on.ID, Quantity: 1}}, PaymentMode: model.PaymentCredit}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ve *model.ValidationError
			if _, err := f.svc.Place(ctx, tc.caller, tc.req); !errors.As(err, &ve) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	// Nothing was written: stock is untouched and the queue is empty.
	it, _ := f.svc.Items(ctx)
	for _, i := range it {
		if i.Stock != 3 {
			t.Errorf("%s stock = %d, want 3", i.Name, i.Stock)
		}
	}
	pending, _ := f.svc.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestOrderLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	it := addItem(t, f, "Adobo", "65", 5, true)

	o, err := f.svc.Place(ctx, auth.Caller{}, OrderRequest{Items: []Line{{ItemID: it.ID, Quantity: 1}}, CustomerName: "Ana"})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.CustomerName != "Ana" {
		t.Errorf("customer name = %q", o.CustomerName)
	}

	st, err := f.svc.Status(ctx, o.OrderNo)
	if err != nil || !st.Found || st.Status != model.OrderPreparing {
		t.Fatalf("status = %+v, %v", st, err)
	}

	ready, err := f.svc.MarkReady(ctx, o.OrderNo)
	if err != nil || ready.Status != model.OrderReady || ready.ReadyAt == nil {
		t.Fatalf("mark ready = %+v, %v", ready, err)
	}
	done, err := f.svc.MarkDone(ctx, o.OrderNo)
	if err != nil || done.Status != model.OrderDone || done.DoneAt == nil {
		t.Fatalf("mark done = %+v, %v", done, err)
	}
	again, err := f.svc.MarkReady(ctx, o.OrderNo)
	if err != nil || again.Status != model.OrderDone {
		t.Errorf("ready after done = %+v, %v", again, err)
	}

	pending, _ := f.svc.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("pending after done = %d", len(pending))
	}

	want := []string{"canteen_order_placed", "canteen_order_ready", "canteen_order_done", "canteen_order_ready"}
	got := f.hub.types()
	got = got[len(got)-len(want):]
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("broadcast %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnknownOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	st, err := f.svc.Status(ctx, "20260101-0001")
	if err != nil || st.Found {
		t.Errorf("status = %+v, %v", st, err)
	}
	if _, err := f.svc.MarkReady(ctx, "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("mark ready: err = %v", err)
	}
	if _, err := f.svc.MarkDone(ctx, "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("mark done: err = %v", err)
	}
}

func TestItemValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	it := addItem(t, f, "Adobo", "65", 5, true)
	addItem(t, f, "Rice", "15", 5, true)

	var ve *model.ValidationError
	bad := []ItemInput{
		{Name: " ", Price: decimal.NewFromInt(1)},
		{Name: "Soup", Price: decimal.NewFromInt(-1)},
		{Name: "Soup", Price: decimal.NewFromInt(1), Stock: -1},
		{Name: "Rice", Price: decimal.NewFromInt(1)},
	}
	for _, in := range bad {
		if _, err := f.svc.CreateItem(ctx, in); !errors.As(err, &ve) {
			t.Errorf("create %+v: err = %v, want ValidationError", in, err)
		}
	}
	if _, err := f.svc.UpdateItem(ctx, it.ID, ItemInput{Name: "Rice", Price: decimal.NewFromInt(1)}); !errors.As(err, &ve) {
		t.Errorf("rename onto existing: err = %v", err)
	}
	if _, err := f.svc.UpdateItem(ctx, 999, ItemInput{Name: "Ghost", Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("update missing: err = %v", err)
	}

	up, err := f.svc.UpdateItem(ctx, it.ID, ItemInput{Name: "Chicken Adobo", Category: "Meals", Price: decimal.NewFromInt(70), Stock: 2})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Name != "Chicken Adobo" || up.Available || up.Stock != 2 {
		t.Errorf("updated = %+v", up)
	}
}
