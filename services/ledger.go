package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"match-wager-system/models"
	"match-wager-system/utils"
)

// WalletLedger is the external ledger holding per-user FC balances. Every
// mutation is keyed by a deterministic hold id, so retried calls are no-ops
// on the ledger side.
type WalletLedger interface {
	// Lock reserves amount from userID's available balance under holdID.
	// Returns models.ErrInsufficientFunds when the balance is short.
	Lock(ctx context.Context, userID string, amount int64, holdID string) error

	// Release returns a locked hold to its owner's available balance.
	Release(ctx context.Context, holdID string) error

	// Transfer moves amount out of the hold to toUserID. Any remainder of
	// the hold is kept by the house as fee.
	Transfer(ctx context.Context, holdID, toUserID string, amount int64) error

	// Refund is Release under a different intent tag; ledgers may audit the
	// two differently.
	Refund(ctx context.Context, holdID string) error

	GetAvailableBalance(ctx context.Context, userID string) (int64, error)
}

// WalletClient calls the platform wallet service over HTTP with the shared
// service token. All endpoints are idempotent given the same hold id.
type WalletClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewWalletClient(baseURL, token string) *WalletClient {
	return &WalletClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

func (c *WalletClient) Lock(ctx context.Context, userID string, amount int64, holdID string) error {
	return c.post(ctx, "/api/v1/ledger/lock", map[string]interface{}{
		"user_id": userID,
		"amount":  amount,
		"hold_id": holdID,
	})
}

func (c *WalletClient) Release(ctx context.Context, holdID string) error {
	return c.post(ctx, "/api/v1/ledger/release", map[string]interface{}{
		"hold_id": holdID,
	})
}

func (c *WalletClient) Transfer(ctx context.Context, holdID, toUserID string, amount int64) error {
	return c.post(ctx, "/api/v1/ledger/transfer", map[string]interface{}{
		"hold_id":    holdID,
		"to_user_id": toUserID,
		"amount":     amount,
	})
}

func (c *WalletClient) Refund(ctx context.Context, holdID string) error {
	return c.post(ctx, "/api/v1/ledger/refund", map[string]interface{}{
		"hold_id": holdID,
	})
}

func (c *WalletClient) GetAvailableBalance(ctx context.Context, userID string) (int64, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/ledger/balance")
	if err != nil {
		return 0, fmt.Errorf("failed to parse wallet URL: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call wallet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("wallet service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Available int64 `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode wallet response: %w", err)
	}
	return response.Available, nil
}

func (c *WalletClient) post(ctx context.Context, path string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode wallet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call wallet service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusPaymentRequired, http.StatusConflict:
		return models.ErrInsufficientFunds
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("wallet service returned status %d: %s", resp.StatusCode, string(respBody))
	}
}

// memHold tracks one hold inside the in-memory ledger.
type memHold struct {
	userID string
	amount int64
	open   bool
}

// MemoryLedger is an in-process WalletLedger for tests and local runs. It
// enforces the same idempotency contract as the wallet service: replays of
// Lock/Release/Transfer/Refund with a known hold id are no-ops.
type MemoryLedger struct {
	mu        sync.Mutex
	available map[string]int64
	holds     map[string]*memHold
	houseFC   int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		available: make(map[string]int64),
		holds:     make(map[string]*memHold),
	}
}

// Credit adds FC to a user's available balance (test/dev seeding).
func (l *MemoryLedger) Credit(userID string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available[userID] += amount
}

// HouseBalance returns fees retained by the platform.
func (l *MemoryLedger) HouseBalance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.houseFC
}

// LockedTotal returns the sum of open holds for a user.
func (l *MemoryLedger) LockedTotal(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, h := range l.holds {
		if h.open && h.userID == userID {
			sum += h.amount
		}
	}
	return sum
}

func (l *MemoryLedger) Lock(_ context.Context, userID string, amount int64, holdID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.holds[holdID]; ok {
		return nil // known hold id: replayed lock
	}
	if l.available[userID] < amount {
		return models.ErrInsufficientFunds
	}
	l.available[userID] -= amount
	l.holds[holdID] = &memHold{userID: userID, amount: amount, open: true}
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, holdID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[holdID]
	if !ok || !h.open {
		return nil
	}
	h.open = false
	l.available[h.userID] += h.amount
	return nil
}

func (l *MemoryLedger) Transfer(_ context.Context, holdID, toUserID string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[holdID]
	if !ok || !h.open {
		return nil
	}
	if amount > h.amount {
		amount = h.amount
	}
	h.open = false
	l.available[toUserID] += amount
	l.houseFC += h.amount - amount
	return nil
}

func (l *MemoryLedger) Refund(ctx context.Context, holdID string) error {
	return l.Release(ctx, holdID)
}

func (l *MemoryLedger) GetAvailableBalance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[userID], nil
}
