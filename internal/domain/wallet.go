package domain

import "time"

type WalletTier string

const (
	WalletTierS WalletTier = "S"
	WalletTierA WalletTier = "A"
	WalletTierB WalletTier = "B"
)

// SmartWallet is a tracked address whose buys are used as a discovery signal.
type SmartWallet struct {
	Address string     `json:"address"`
	Label   string     `json:"label"`
	Tier    WalletTier `json:"tier"`
	WinRate float64    `json:"win_rate"`
	AddedAt time.Time  `json:"added_at"`
}

// BlacklistEntry bans a token mint or deployer address from entry.
type BlacklistEntry struct {
	Address   string    `json:"address"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
