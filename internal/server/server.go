package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/climbs/internal/admin"
	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/backup"
	"github.com/dukerupert/climbs/internal/canteen"
	"github.com/dukerupert/climbs/internal/handler"
	"github.com/dukerupert/climbs/internal/ledger"
	"github.com/dukerupert/climbs/internal/loan"
	"github.com/dukerupert/climbs/internal/membership"
	"github.com/dukerupert/climbs/internal/metrics"
	"github.com/dukerupert/climbs/internal/middleware"
	"github.com/dukerupert/climbs/internal/store"
	ws "github.com/dukerupert/climbs/internal/websocket"
)

// Options carries the settings the HTTP layer needs from config.
type Options struct {
	UserIDPrefix string
	Cookies      handler.Cookies
	Backup       backup.Config
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	membershipH  *handler.MembershipHandler
	adminH       *handler.AdminHandler
	canteenH     *handler.CanteenHandler
	backupH      *handler.BackupHandler
	backups      *backup.Manager
	adminSvc     *admin.Service
	sessionStore *store.SessionStore
	memberStore  *store.MemberStore
	adminStore   *store.AdminStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	ledgerStore := store.NewLedgerStore(db)
	loanStore := store.NewLoanStore(db)
	canteenStore := store.NewCanteenStore(db)
	adminStore := store.NewAdminStore(db)
	sessionStore := store.NewSessionStore(db)

	ledgerEngine := ledger.NewEngine(ledgerStore, logger.With("component", "ledger"))
	loanEngine := loan.NewEngine(loanStore, logger.With("component", "loan"))
	membershipSvc := membership.NewService(memberStore, ledgerStore, loanStore, opts.UserIDPrefix, logger.With("component", "membership"))
	adminSvc := admin.NewService(adminStore, logger.With("component", "admin"))
	canteenSvc := canteen.NewService(canteenStore, memberStore, hub, logger.With("component", "canteen"))
	backups := backup.NewManager(opts.Backup, db, logger.With("component", "backup"))

	return &Server{
		db:           db,
		hub:          hub,
		membershipH:  handler.NewMembershipHandler(membershipSvc, ledgerEngine, loanEngine, sessionStore, opts.Cookies, logger.With("component", "membership_handler")),
		adminH:       handler.NewAdminHandler(adminSvc, membershipSvc, ledgerEngine, loanEngine, sessionStore, opts.Cookies, logger.With("component", "admin_handler")),
		canteenH:     handler.NewCanteenHandler(canteenSvc, logger.With("component", "canteen_handler")),
		backupH:      handler.NewBackupHandler(backups, logger.With("component", "backup_handler")),
		backups:      backups,
		adminSvc:     adminSvc,
		sessionStore: sessionStore,
		memberStore:  memberStore,
		adminStore:   adminStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Backups returns the snapshot manager so main can run its schedule.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// AdminService returns the admin service for bootstrapping the first account.
func (s *Server) AdminService() *admin.Service {
	return s.adminSvc
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /membership/register/submit", s.rateLimitedHandler(s.membershipH.Register))
	mux.HandleFunc("GET /membership/generate-userid", s.membershipH.GenerateUserID)
	mux.HandleFunc("POST /membership/login", s.rateLimitedHandler(s.membershipH.Login))
	mux.HandleFunc("POST /membership/logout", s.membershipH.Logout)
	mux.HandleFunc("POST /membership/admin/login", s.rateLimitedHandler(s.adminH.Login))
	mux.HandleFunc("POST /membership/admin/logout", s.adminH.Logout)
	mux.HandleFunc("GET /canteen/menu", s.canteenH.Menu)
	mux.HandleFunc("POST /canteen/orders", s.canteenH.PlaceOrder)
	mux.HandleFunc("GET /canteen/orders/{orderNo}/status", s.canteenH.OrderStatus)
	mux.HandleFunc("GET /canteen/ws", s.orderFeed(ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"))))

	s.registerMemberRoutes(mux)
	s.registerAdminRoutes(mux)

	// InstrumentHandler sits directly on the mux so it sees the matched
	// pattern; RequestLogger sits inside LoadSession so it sees the caller.
	var h http.Handler = metrics.InstrumentHandler(mux)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.LoadSession(s.sessionStore, s.memberStore, s.adminStore, s.logger.With("component", "session"))(h)
}

func (s *Server) registerMemberRoutes(mux *http.ServeMux) {
	member := func(h http.HandlerFunc) http.Handler { return middleware.RequireMember(h) }

	mux.Handle("GET /membership/dashboard/data", member(s.membershipH.Dashboard))
	mux.Handle("GET /membership/dashboard/shares", member(s.membershipH.Shares))
	mux.Handle("GET /membership/dashboard/savings", member(s.membershipH.Savings))
	mux.Handle("GET /membership/dashboard/loans", member(s.membershipH.Loans))
	mux.Handle("GET /membership/dashboard/loan-payments/{loanId}", member(s.membershipH.LoanPayments))
	mux.Handle("POST /membership/dashboard/submit-form", member(s.membershipH.SubmitForm))
	mux.Handle("POST /membership/dashboard/update", member(s.membershipH.Update))
	mux.Handle("POST /membership/dashboard/change-password", member(s.membershipH.ChangePassword))
	mux.Handle("POST /membership/dashboard/upload-photo", member(s.membershipH.UploadPhoto))
	mux.Handle("GET /canteen/my-orders", member(s.canteenH.MyOrders))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	adminOnly := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

	// Membership office
	mux.Handle("GET /membership/admin/data", adminOnly(s.adminH.Members))
	mux.Handle("GET /membership/admin/member/{id}", adminOnly(s.adminH.Member))
	mux.Handle("GET /membership/admin/member-form/{id}", adminOnly(s.adminH.Member))
	mux.Handle("POST /membership/admin/update-status", adminOnly(s.adminH.UpdateStatus))
	mux.Handle("POST /membership/admin/approve-form", adminOnly(s.adminH.ApproveForm))
	mux.Handle("POST /membership/admin/add-shares", adminOnly(s.adminH.AddShares))
	mux.Handle("POST /membership/admin/add-savings", adminOnly(s.adminH.AddSavings))
	mux.Handle("POST /membership/admin/add-loan", adminOnly(s.adminH.AddLoan))
	mux.Handle("POST /membership/admin/add-loan-payment", adminOnly(s.adminH.AddLoanPayment))
	mux.Handle("GET /membership/admin/all-shares", adminOnly(s.adminH.AllShares))
	mux.Handle("GET /membership/admin/all-savings", adminOnly(s.adminH.AllSavings))
	mux.Handle("GET /membership/admin/all-loans", adminOnly(s.adminH.AllLoans))
	mux.Handle("GET /membership/admin/backup", adminOnly(s.backupH.Status))
	mux.Handle("POST /membership/admin/backup", adminOnly(s.backupH.Run))

	// Canteen kitchen and catalog
	mux.Handle("GET /canteen/admin/orders/pending", adminOnly(s.canteenH.Pending))
	mux.Handle("GET /canteen/admin/orders/credit", adminOnly(s.canteenH.Credit))
	mux.Handle("POST /canteen/admin/orders/{orderNo}/ready", adminOnly(s.canteenH.MarkReady))
	mux.Handle("POST /canteen/admin/orders/{orderNo}/done", adminOnly(s.canteenH.MarkDone))
	mux.Handle("GET /canteen/admin/items", adminOnly(s.canteenH.Items))
	mux.Handle("POST /canteen/admin/items", adminOnly(s.canteenH.CreateItem))
	mux.Handle("PUT /canteen/admin/items/{id}", adminOnly(s.canteenH.UpdateItem))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "ws_clients": s.hub.ClientCount()})
}

// orderFeed lets anyone follow a single order; the unfiltered kitchen feed
// is for administrators.
func (s *Server) orderFeed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") == "" && !auth.IsAdmin(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ByIP, 10, time.Minute)
	limited := rl(h)
	return limited.ServeHTTP
}
