package models

import "time"

// SubscriptionStatus values stored on the user record.
const (
	SubscriptionInactive = "inactive"
	SubscriptionActive   = "active"
	SubscriptionTrial    = "trial"
)

// User is a platform account that owns bots and a payment subscription.
type User struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	Name                string    `json:"name"`
	SubscriptionStatus  string    `json:"subscription_status"`
	GatewayTransaction  string    `json:"wompi_subscription_id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
