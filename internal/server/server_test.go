package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/handler"
)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func setupServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	db, err := database.Open(":memory:", 1)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := New(db, Options{UserIDPrefix: "CESLA", Cookies: handler.Cookies{TTL: time.Hour}}, slog.Default())
	if err := srv.AdminService().EnsureBootstrap(context.Background(), "admin", "secret", "Office Admin"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, srv
}

func newClient(t *testing.T, ts *httptest.Server) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &client{t: t, base: ts.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path, body string) (int, []byte) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatal(err)
	}
	return resp.StatusCode, data
}

// post sends a JSON body and decodes the {success,...} answer.
func (c *client) post(path, body string) map[string]any {
	c.t.Helper()
	code, data := c.do("POST", path, body)
	if code != http.StatusOK {
		c.t.Fatalf("POST %s: status %d: %s", path, code, data)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		c.t.Fatalf("POST %s: decode %q: %v", path, data, err)
	}
	return out
}

func (c *client) mustSucceed(path, body string) map[string]any {
	c.t.Helper()
	out := c.post(path, body)
	if out["success"] != true {
		c.t.Fatalf("POST %s: %v", path, out)
	}
	return out
}

func (c *client) getList(path string) []map[string]any {
	c.t.Helper()
	code, data := c.do("GET", path, "")
	if code != http.StatusOK {
		c.t.Fatalf("GET %s: status %d: %s", path, code, data)
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		c.t.Fatalf("GET %s: decode %q: %v", path, data, err)
	}
	return out
}

func TestMembershipJourney(t *testing.T) {
	ts, _ := setupServer(t)
	member := newClient(t, ts)
	office := newClient(t, ts)

	member.mustSucceed("/membership/register/submit", `{"userId":"CESLA-2026-00001","password":"pw"}`)
	if out := member.post("/membership/register/submit", `{"userId":"CESLA-2026-00001","password":"other"}`); out["success"] != false {
		t.Errorf("duplicate registration: %v", out)
	}
	if out := member.post("/membership/login", `{"userId":"CESLA-2026-00001","password":"pw"}`); out["pending"] != true {
		t.Fatalf("pending login: %v", out)
	}

	office.mustSucceed("/membership/admin/login", `{"username":"admin","password":"secret"}`)
	members := office.getList("/membership/admin/data")
	if len(members) != 1 {
		t.Fatalf("members = %v", members)
	}
	id := int64(members[0]["id"].(float64))
	office.mustSucceed("/membership/admin/update-status", fmt.Sprintf(`{"id":%d,"status":"approved"}`, id))

	member.mustSucceed("/membership/login", `{"userId":"CESLA-2026-00001","password":"pw"}`)
	code, data := member.do("GET", "/membership/dashboard/data", "")
	if code != http.StatusOK || !strings.Contains(string(data), `"user_id":"CESLA-2026-00001"`) {
		t.Fatalf("dashboard: %d %s", code, data)
	}

	// Form: submit, approve, then locked.
	member.mustSucceed("/membership/dashboard/submit-form",
		`{"firstName":"Juan","lastName":"Cruz","dependents":"2","familyMembers":[{"name":"Maria","relation":"spouse","age":"34"}]}`)
	office.mustSucceed("/membership/admin/approve-form", fmt.Sprintf(`{"id":%d,"action":"approve"}`, id))
	out := member.post("/membership/dashboard/submit-form", `{"firstName":"Changed"}`)
	if out["message"] != "Your application form is already approved and cannot be edited." {
		t.Errorf("resubmit after approval: %v", out)
	}

	// Shares ledger.
	out = office.mustSucceed("/membership/admin/add-shares",
		fmt.Sprintf(`{"member_id":%d,"type":"deposit","amount":"1000","or_number":"OR-1"}`, id))
	if out["newBalance"] != "1000" {
		t.Errorf("newBalance = %v", out["newBalance"])
	}
	out = office.post("/membership/admin/add-shares", fmt.Sprintf(`{"member_id":%d,"type":"withdrawal","amount":1500}`, id))
	if out["message"] != "Insufficient share balance." {
		t.Errorf("overdraw: %v", out)
	}
	if shares := member.getList("/membership/dashboard/shares"); len(shares) != 1 {
		t.Errorf("member shares = %v", shares)
	}

	// Loan and payment.
	out = office.mustSucceed("/membership/admin/add-loan",
		fmt.Sprintf(`{"member_id":%d,"amount":"12000","interest_rate":"2","term_months":"12","date_released":"2026-01-15"}`, id))
	if out["monthlyPayment"] != "1020.00" || out["dueDate"] != "2027-01-15" {
		t.Errorf("loan = %v", out)
	}
	loans := member.getList("/membership/dashboard/loans")
	if len(loans) != 1 {
		t.Fatalf("loans = %v", loans)
	}
	loanID := int64(loans[0]["id"].(float64))
	out = office.mustSucceed("/membership/admin/add-loan-payment",
		fmt.Sprintf(`{"loan_id":%d,"amount_paid":"1020","principal":"1000","interest":"20"}`, loanID))
	if out["remainingBalance"] != "11000" || out["status"] != "active" {
		t.Errorf("payment = %v", out)
	}
	if p := member.getList(fmt.Sprintf("/membership/dashboard/loan-payments/%d", loanID)); len(p) != 1 {
		t.Errorf("payments = %v", p)
	}
	out = office.post("/membership/admin/add-loan-payment", `{"loan_id":999,"amount_paid":"10"}`)
	if out["message"] != "Loan not found." {
		t.Errorf("missing loan: %v", out)
	}

	// Logging out ends the member session.
	member.mustSucceed("/membership/logout", "")
	if code, _ := member.do("GET", "/membership/dashboard/data", ""); code != http.StatusUnauthorized {
		t.Errorf("after logout: status %d", code)
	}
}

func TestCanteenJourney(t *testing.T) {
	ts, _ := setupServer(t)
	office := newClient(t, ts)
	guest := newClient(t, ts)

	office.mustSucceed("/membership/admin/login", `{"username":"admin","password":"secret"}`)
	out := office.mustSucceed("/canteen/admin/items", `{"name":"Adobo","category":"Meals","price":"65","stock":5}`)
	item := out["item"].(map[string]any)
	itemID := int64(item["id"].(float64))

	if menu := guest.getList("/canteen/menu"); len(menu) != 1 {
		t.Fatalf("menu = %v", menu)
	}
	if out := guest.post("/canteen/orders", fmt.Sprintf(`{"items":[{"item_id":%d,"quantity":1}],"payment_mode":"credit"}`, itemID)); out["success"] != false {
		t.Errorf("visitor credit order accepted: %v", out)
	}
	out = guest.mustSucceed("/canteen/orders", fmt.Sprintf(`{"items":[{"item_id":%d,"quantity":2}],"customer_name":"Ana"}`, itemID))
	orderNo := out["orderNo"].(string)
	if out["total"] != "130" {
		t.Errorf("total = %v", out["total"])
	}

	poll := func() map[string]any {
		_, data := guest.do("GET", "/canteen/orders/"+orderNo+"/status", "")
		var st map[string]any
		json.Unmarshal(data, &st)
		return st
	}
	if st := poll(); st["found"] != true || st["status"] != "preparing" || st["id"] != out["id"] {
		t.Errorf("poll = %v", st)
	}

	if code, _ := guest.do("GET", "/canteen/admin/orders/pending", ""); code != http.StatusUnauthorized {
		t.Errorf("guest pending: status %d", code)
	}
	if code, _ := guest.do("POST", "/canteen/admin/orders/"+orderNo+"/ready", ""); code != http.StatusUnauthorized {
		t.Errorf("guest mark ready: status %d", code)
	}
	pending := office.getList("/canteen/admin/orders/pending")
	if len(pending) != 1 || len(pending[0]["items"].([]any)) != 1 {
		t.Fatalf("pending = %v", pending)
	}

	office.mustSucceed("/canteen/admin/orders/"+orderNo+"/ready", "")
	if st := poll(); st["status"] != "ready" {
		t.Errorf("after ready: %v", st)
	}
	office.mustSucceed("/canteen/admin/orders/"+orderNo+"/done", "")
	if st := poll(); st["status"] != "done" {
		t.Errorf("after done: %v", st)
	}
	if pending := office.getList("/canteen/admin/orders/pending"); len(pending) != 0 {
		t.Errorf("pending after done = %v", pending)
	}

	_, data := guest.do("GET", "/canteen/orders/20000101-0001/status", "")
	if string(data) != "{\"found\":false}\n" {
		t.Errorf("unknown order poll = %s", data)
	}
}

func TestPublicEndpoints(t *testing.T) {
	ts, _ := setupServer(t)
	c := newClient(t, ts)

	code, data := c.do("GET", "/health", "")
	if code != http.StatusOK || !strings.Contains(string(data), `"status":"ok"`) {
		t.Errorf("health = %d %s", code, data)
	}

	code, data = c.do("GET", "/membership/generate-userid", "")
	year := time.Now().Year()
	if code != http.StatusOK || !strings.Contains(string(data), fmt.Sprintf(`"userId":"CESLA-%d-00001"`, year)) {
		t.Errorf("generate-userid = %d %s", code, data)
	}

	code, data = c.do("GET", "/membership/admin/data", "")
	if code != http.StatusUnauthorized || string(data) != "{\"error\":\"Unauthorized\"}\n" {
		t.Errorf("admin data anonymous = %d %s", code, data)
	}

	if code, _ := c.do("GET", "/canteen/ws", ""); code != http.StatusUnauthorized {
		t.Errorf("unfiltered order feed anonymous = %d", code)
	}

	code, data = c.do("GET", "/metrics", "")
	if code != http.StatusOK || !strings.Contains(string(data), "climbs_http_requests_total") {
		t.Errorf("metrics = %d, missing request counter", code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	ts, _ := setupServer(t)
	c := newClient(t, ts)

	var last int
	for i := 0; i < 11; i++ {
		last, _ = c.do("POST", "/membership/admin/login", `{"username":"admin","password":"wrong"}`)
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11th login attempt: status %d, want 429", last)
	}
}

func TestBackupEndpoints(t *testing.T) {
	ts, _ := setupServer(t)
	c := newClient(t, ts)

	if code, _ := c.do("POST", "/membership/admin/backup", ""); code != http.StatusUnauthorized {
		t.Errorf("backup anonymous = %d, want 401", code)
	}

	c.mustSucceed("/membership/admin/login", `{"username":"admin","password":"secret"}`)

	code, data := c.do("GET", "/membership/admin/backup", "")
	if code != http.StatusOK || !strings.Contains(string(data), `"state":"disabled"`) {
		t.Errorf("backup status = %d %s", code, data)
	}

	out := c.post("/membership/admin/backup", "")
	if out["success"] != false || out["message"] != "Backups are not configured." {
		t.Errorf("backup run without storage = %v", out)
	}
}
