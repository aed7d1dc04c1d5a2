package storage

import (
	"fmt"
	"ratelimiter/internal/models"
	"time"
)

// accountRow is the column layout shared by the SQL backends. Nullable
// columns scan into pointers.
type accountRow struct {
	ID            string
	UserName      string
	APIKeyHash    *string
	APIKeyPrefix  string
	PermitLimit   *int64
	WindowMinutes *int64
}

// scanTargets returns destinations in accountColumns order, excluding the
// timestamps, which each backend scans in its own representation.
func (r *accountRow) scanTargets() []any {
	return []any{&r.ID, &r.UserName, &r.APIKeyHash, &r.APIKeyPrefix, &r.PermitLimit, &r.WindowMinutes}
}

func (r *accountRow) toModel(createdAt, updatedAt time.Time) *models.Account {
	a := &models.Account{
		ID:           r.ID,
		UserName:     r.UserName,
		APIKeyPrefix: r.APIKeyPrefix,
		Subscription: subscriptionFromColumns(r.PermitLimit, r.WindowMinutes),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	if r.APIKeyHash != nil {
		a.APIKeyHash = *r.APIKeyHash
	}
	return a
}

// subscriptionFromColumns maps the two nullable limit columns to a
// Subscription. Both NULL means the account has no subscription.
func subscriptionFromColumns(permitLimit, windowMinutes *int64) *models.Subscription {
	if permitLimit == nil && windowMinutes == nil {
		return nil
	}
	sub := &models.Subscription{}
	if permitLimit != nil {
		sub.PermitLimit = int(*permitLimit)
	}
	if windowMinutes != nil {
		sub.WindowMinutes = int(*windowMinutes)
	}
	return sub
}

// subscriptionColumns is the inverse of subscriptionFromColumns.
func subscriptionColumns(sub *models.Subscription) (permitLimit, windowMinutes *int64) {
	if sub == nil {
		return nil, nil
	}
	p, w := int64(sub.PermitLimit), int64(sub.WindowMinutes)
	return &p, &w
}

// nullableString maps the empty string to NULL so unique indexes ignore it.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// formatTimestamp and parseTimestamp store times as RFC 3339 text in SQLite,
// which has no native timestamp type.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// prepareForSave fills in the ID and timestamps of a new account.
func prepareForSave(a *models.Account, now time.Time) {
	if a.ID == "" {
		a.ID = models.NewAccountID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}
