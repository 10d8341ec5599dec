package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/climbs/internal/admin"
	"github.com/dukerupert/climbs/internal/backup"
	"github.com/dukerupert/climbs/internal/canteen"
	"github.com/dukerupert/climbs/internal/ledger"
	"github.com/dukerupert/climbs/internal/loan"
	"github.com/dukerupert/climbs/internal/membership"
	"github.com/dukerupert/climbs/internal/model"
)

const serverError = "Server error."

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOK answers a successful mutation. extra keys ride alongside success.
func writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// writeFail answers a refused mutation. Refusals are still HTTP 200; the
// browser reads success and message.
func writeFail(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": message})
}

// userMessages are the sentinel errors a caller is allowed to see.
var userMessages = []struct {
	err error
	msg string
}{
	{membership.ErrUserIDTaken, "User ID already exists. Please refresh and try again."},
	{membership.ErrInvalidCredentials, "Invalid User ID or password."},
	{membership.ErrPending, "Your application is pending approval."},
	{membership.ErrRejected, "Your membership application was not approved. Please contact the cooperative office."},
	{membership.ErrFormLocked, "Your application form is already approved and cannot be edited."},
	{membership.ErrWrongPassword, "Incorrect current password."},
	{membership.ErrMemberNotFound, "Member not found."},
	{ledger.ErrMemberNotFound, "Member not found."},
	{ledger.ErrInsufficientBalance, "Insufficient balance."},
	{loan.ErrMemberNotFound, "Member not found."},
	{loan.ErrNotFound, "Loan not found."},
	{admin.ErrInvalidCredentials, "Invalid username or password."},
	{canteen.ErrOrderNotFound, "Order not found."},
	{canteen.ErrItemNotFound, "Item not found."},
	{backup.ErrDisabled, "Backups are not configured."},
}

// writeError turns a service error into the {success:false} answer. Errors
// the caller can act on keep their message; everything else is logged and
// reported as a server error.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeFail(w, ve.Message)
		return
	}
	for _, um := range userMessages {
		if errors.Is(err, um.err) {
			writeFail(w, um.msg)
			return
		}
	}
	logger.Error(op, "error", err)
	writeFail(w, serverError)
}

// writeList answers a list read. Reads never fail in front of the browser:
// an error is logged and the list comes back empty.
func writeList[T any](w http.ResponseWriter, logger *slog.Logger, op string, items []T, err error) {
	if err != nil {
		logger.Error(op, "error", err)
		items = nil
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

// writeObject is writeList for single-object reads; failures degrade to {}.
func writeObject(w http.ResponseWriter, logger *slog.Logger, op string, v any, err error) {
	if err != nil {
		logger.Error(op, "error", err)
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// decode reads a JSON body into dst and, for structs, runs its validate tags.
// The returned error is always a *model.ValidationError.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.Invalid("Invalid request.")
	}
	if v := reflect.ValueOf(dst); v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	if err := validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) || len(fields) == 0 {
			return model.Invalid("Invalid request.")
		}
		fe := fields[0]
		if fe.Tag() == "required" {
			return &model.ValidationError{Field: fe.Field(), Message: "Missing required fields."}
		}
		return &model.ValidationError{Field: fe.Field(), Message: "Invalid " + fe.Field() + "."}
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}
