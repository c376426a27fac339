package solgate

import "time"

// Account is a single user account managed by Solgate.
//
// PayoutAddress is the Solana address settled funds are forwarded to;
// settlement aborts for invoices whose owner has none configured.
type Account struct {
	ID            int64
	Email         string
	Username      string
	PasswordHash  string // bcrypt
	APIKey        string
	PayoutAddress Address    // empty until the user sets one
	TotalEarned   CoinAmount // credited on each confirmed settlement
	PaymentCount  int64      // number of invoices issued
	Created       time.Time
}

// GetPublicInfo gets those parts of the Account that are safe
// to expose to the outside world (i.e. NOT the password hash).
func (a Account) GetPublicInfo() AccountPublic {
	return AccountPublic{
		ID:            a.ID,
		Email:         a.Email,
		Username:      a.Username,
		PayoutAddress: a.PayoutAddress,
		TotalEarned:   a.TotalEarned,
		PaymentCount:  a.PaymentCount,
	}
}

type AccountPublic struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	PayoutAddress Address    `json:"payout_address,omitempty"`
	TotalEarned   CoinAmount `json:"total_earned"`
	PaymentCount  int64      `json:"total_payments"`
}
