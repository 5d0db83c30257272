// Package service holds the settlement business logic: the settlement
// engine, payouts, fee administration, revenue and authorization.
package service

import "github.com/google/uuid"

func newID() string {
	return uuid.New().String()
}
