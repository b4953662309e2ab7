package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hellarekt/perpbot/internal/domain"
)

// Small capability interfaces at the engine boundary. The settlement ledger
// (perps contract + liquidity pool + collateral token) sits behind these;
// the engine never re-implements settlement logic, it only reads advisory
// state and submits requests the ledger may accept or reject.

// LedgerReader reads authoritative position/pool state from the ledger.
//
// Absence and failure are distinct: a missing position is (nil, nil),
// a transport/RPC problem is a non-nil error. Callers must never treat
// an error as "zero positions".
type LedgerReader interface {
	// GetOwnedPositionIDs returns the ids of all positions the ledger has
	// recorded for owner, in ledger insertion order (closed ones included).
	GetOwnedPositionIDs(ctx context.Context, owner string) ([]string, error)

	// GetPositionByID resolves one position record. Returns (nil, nil) when
	// the id does not resolve to a readable record.
	GetPositionByID(ctx context.Context, id string) (*domain.Position, error)

	// GetPoolStats returns liquidity pool totals.
	GetPoolStats(ctx context.Context) (*domain.PoolStats, error)

	// GetUserPoolShare returns owner's share of the liquidity pool.
	GetUserPoolShare(ctx context.Context, owner string) (*domain.PoolShare, error)

	// CollateralBalance returns owner's collateral token (USDT) balance.
	CollateralBalance(ctx context.Context, owner string) (decimal.Decimal, error)
}

// PendingTx is a dispatched ledger write awaiting settlement.
type PendingTx interface {
	// Hash identifies the broadcast transaction.
	Hash() string

	// Wait blocks until the transaction settles. A mined-but-reverted
	// transaction is an error ("settled as failure"); a nil error means
	// settled successfully. Once broadcast the write cannot be recalled.
	Wait(ctx context.Context) error
}

// ActionKind names a non-approval ledger write.
type ActionKind string

const (
	ActionOpenPosition  ActionKind = "open_position"
	ActionClosePosition ActionKind = "close_position"
	ActionFaucetClaim   ActionKind = "faucet_claim"
	ActionPoolDeposit   ActionKind = "pool_deposit"
)

// OpenPositionArgs carries openPosition call arguments.
type OpenPositionArgs struct {
	Asset      string
	Leverage   int
	IsLong     bool
	Collateral decimal.Decimal
	EntryPrice decimal.Decimal
}

// ClosePositionArgs carries closePosition call arguments.
type ClosePositionArgs struct {
	PositionID string
	ClosePrice decimal.Decimal
}

// PoolDepositArgs carries pool deposit call arguments.
type PoolDepositArgs struct {
	Amount decimal.Decimal
}

// ApprovalTarget names the contract an ERC20 approval is granted to.
type ApprovalTarget string

const (
	ApproveForPerps ApprovalTarget = "perps"
	ApproveForPool  ApprovalTarget = "pool"
)

// LedgerWriter submits signed writes to the ledger.
//
// A returned PendingTx means the write was accepted by the network for
// inclusion; settlement (and possible revert) is observed via Wait.
type LedgerWriter interface {
	// SubmitApproval approves the target contract to spend amount of the
	// collateral token on behalf of the signer.
	SubmitApproval(ctx context.Context, target ApprovalTarget, amount decimal.Decimal) (PendingTx, error)

	// SubmitAction dispatches one contract action. args must match kind:
	// OpenPositionArgs / ClosePositionArgs / PoolDepositArgs, or nil for
	// ActionFaucetClaim.
	SubmitAction(ctx context.Context, kind ActionKind, args any) (PendingTx, error)
}

// PriceSource is the read side of the price feed, as consumed by
// validation and display code.
type PriceSource interface {
	// Latest returns the most recent tick for symbol, ok=false when no
	// tick has been observed yet. The returned price is always > 0.
	Latest(symbol string) (domain.PriceTick, bool)
}
