// Package models - API request types and input validation.
package models

import (
	"errors"
	"strings"
	"time"
)

const maxUserNameLength = 128

// LoginRequest is the body of POST /api/login. The password is accepted but
// not checked: the login endpoint is a token vending stub for the demo.
type LoginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	name := strings.TrimSpace(r.UserName)
	if name == "" {
		return errors.New("user_name is required")
	}
	if len(name) > maxUserNameLength {
		return errors.New("user_name must be at most 128 characters")
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.UserName = strings.TrimSpace(r.UserName)
}

// ParseExpiration parses the optional expiration query parameter of the
// login endpoint. An empty value yields the zero time.
func ParseExpiration(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("expiration must be an RFC3339 timestamp")
	}
	if !t.After(now) {
		return time.Time{}, errors.New("expiration must be in the future")
	}
	return t, nil
}
