package models

import "time"

// Organization represents a tenant. The Domain field is the unit of data
// isolation: every assessment and finding belongs to exactly one domain, and
// the relational backend derives the tenant database name from it.
type Organization struct {
	Domain        string    `db:"domain"         json:"domain"`
	Name          string    `db:"name"           json:"name"`
	BillingEmail  string    `db:"billing_email"  json:"billingEmail"`
	AccountID     string    `db:"account_id"     json:"accountId"`
	PaymentPlan   string    `db:"payment_plan"   json:"paymentPlan"`
	SeatLimit     int       `db:"seat_limit"     json:"seatLimit"`
	CreatedAt     time.Time `db:"created_at"     json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updatedAt"`
}
