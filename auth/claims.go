package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claims structure shared by the hub and its clients.
// It embeds jwt.RegisteredClaims for standard fields (exp, iat, etc.) and
// adds the account, device and tier the session was issued for.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	DeviceID  string `json:"device_id,omitempty"`
	Tier      string `json:"tier"`
}
