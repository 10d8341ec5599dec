package auth

import "context"

type contextKey struct{}

// Caller identifies who is making a request. A caller is a member, an
// admin, or anonymous (zero value).
type Caller struct {
	MemberID     int64
	MemberUserID string
	AdminID      int64
	AdminName    string
	SessionID    int64
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok
}

// CallerFrom returns the caller in ctx, or the anonymous caller.
func CallerFrom(ctx context.Context) Caller {
	c, _ := FromContext(ctx)
	return c
}

func (c Caller) IsMember() bool {
	return c.MemberID != 0
}

func (c Caller) IsAdmin() bool {
	return c.AdminID != 0
}

// RecordedBy is the name stamped on postings made by this caller.
func (c Caller) RecordedBy() string {
	if c.AdminName != "" {
		return c.AdminName
	}
	return "admin"
}

func MemberID(ctx context.Context) int64 {
	return CallerFrom(ctx).MemberID
}

func IsAdmin(ctx context.Context) bool {
	return CallerFrom(ctx).IsAdmin()
}
