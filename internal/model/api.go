package model

import "time"

// WalletResponse is the public view of a WalletRecord. The encrypted key never leaves the process.
type WalletResponse struct {
	PublicKey   string    `json:"publicKey"`
	Label       string    `json:"label"`
	Balance     string    `json:"balance"` // SOL
	Lamports    uint64    `json:"lamports"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// StateResponse represents response for GET /state
type StateResponse struct {
	Wallets   []WalletResponse `json:"wallets"`
	IsBusy    bool             `json:"isBusy"`
	LastError string           `json:"lastError,omitempty"`
}

// AddWalletRequest represents request for POST /wallets
type AddWalletRequest struct {
	Label string `json:"label"`
}

// BulkAddRequest represents request for POST /wallets/bulk
type BulkAddRequest struct {
	LabelPrefix string `json:"labelPrefix"`
	Count       int    `json:"count"`
}

// RenameRequest represents request for PATCH /wallets/{publicKey}
type RenameRequest struct {
	Label string `json:"label"`
}

// BalanceRequest represents request for PUT /wallets/{publicKey}/balance
type BalanceRequest struct {
	Balance string `json:"balance"` // SOL, up to 9 decimals
}

// Transaction is one signature touching a wallet, as reported by the chain.
type Transaction struct {
	TxID        string     `json:"txId"`
	BlockNumber uint64     `json:"blockNumber"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Status      string     `json:"status"`
}

// TransactionsResponse represents response for GET /wallets/{publicKey}/transactions
type TransactionsResponse struct {
	PublicKey    string        `json:"publicKey"`
	Transactions []Transaction `json:"transactions"`
}
