package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/ports"
)

// fakeReader is an in-memory ports.LedgerReader.
type fakeReader struct {
	mu        sync.Mutex
	ids       []string
	positions map[string]*domain.Position
	balance   decimal.Decimal
	poolStats *domain.PoolStats
	poolShare *domain.PoolShare

	idsErr  error
	posErr  map[string]error
	balErr  error
	poolErr error

	refreshCalls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		positions: make(map[string]*domain.Position),
		posErr:    make(map[string]error),
		poolStats: &domain.PoolStats{},
		poolShare: &domain.PoolShare{},
	}
}

func (r *fakeReader) GetOwnedPositionIDs(ctx context.Context, owner string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshCalls++
	if r.idsErr != nil {
		return nil, r.idsErr
	}
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out, nil
}

func (r *fakeReader) GetPositionByID(ctx context.Context, id string) (*domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.posErr[id]; err != nil {
		return nil, err
	}
	p, ok := r.positions[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeReader) GetPoolStats(ctx context.Context) (*domain.PoolStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poolErr != nil {
		return nil, r.poolErr
	}
	cp := *r.poolStats
	return &cp, nil
}

func (r *fakeReader) GetUserPoolShare(ctx context.Context, owner string) (*domain.PoolShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poolErr != nil {
		return nil, r.poolErr
	}
	cp := *r.poolShare
	return &cp, nil
}

func (r *fakeReader) CollateralBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balErr != nil {
		return decimal.Zero, r.balErr
	}
	return r.balance, nil
}

// scriptedTx is a ports.PendingTx with a scripted settlement outcome.
// When release is non-nil, Wait blocks until it is closed.
type scriptedTx struct {
	hash    string
	waitErr error
	release chan struct{}
}

func (x *scriptedTx) Hash() string { return x.hash }

func (x *scriptedTx) Wait(ctx context.Context) error {
	if x.release != nil {
		select {
		case <-x.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return x.waitErr
}

type dispatchRecord struct {
	op   string // "approve:<target>" or the action kind
	args any
}

type scriptedResult struct {
	err error
	tx  *scriptedTx
}

// fakeWriter is a ports.LedgerWriter that records dispatches and replays
// scripted outcomes in order. With an empty script every dispatch
// succeeds and settles immediately.
type fakeWriter struct {
	mu      sync.Mutex
	records []dispatchRecord
	script  []scriptedResult
	seq     int
}

func (w *fakeWriter) push(res scriptedResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.script = append(w.script, res)
}

func (w *fakeWriter) next(rec dispatchRecord) (ports.PendingTx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	w.seq++

	if len(w.script) > 0 {
		res := w.script[0]
		w.script = w.script[1:]
		if res.err != nil {
			return nil, res.err
		}
		if res.tx.hash == "" {
			res.tx.hash = fmt.Sprintf("0xtx%d", w.seq)
		}
		return res.tx, nil
	}
	return &scriptedTx{hash: fmt.Sprintf("0xtx%d", w.seq)}, nil
}

func (w *fakeWriter) SubmitApproval(ctx context.Context, target ports.ApprovalTarget, amount decimal.Decimal) (ports.PendingTx, error) {
	return w.next(dispatchRecord{op: "approve:" + string(target), args: amount})
}

func (w *fakeWriter) SubmitAction(ctx context.Context, kind ports.ActionKind, args any) (ports.PendingTx, error) {
	return w.next(dispatchRecord{op: string(kind), args: args})
}

func (w *fakeWriter) recorded() []dispatchRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]dispatchRecord, len(w.records))
	copy(out, w.records)
	return out
}

// fakePrices is a static ports.PriceSource.
type fakePrices struct {
	mu    sync.Mutex
	ticks map[string]domain.PriceTick
}

func newFakePrices() *fakePrices {
	return &fakePrices{ticks: make(map[string]domain.PriceTick)}
}

func (p *fakePrices) set(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks[symbol] = domain.PriceTick{
		Symbol:     symbol,
		Price:      decimal.NewFromFloat(price),
		ObservedAt: time.Now(),
	}
}

func (p *fakePrices) Latest(symbol string) (domain.PriceTick, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tick, ok := p.ticks[symbol]
	if !ok || !tick.IsUsable() {
		return domain.PriceTick{}, false
	}
	return tick, true
}

func activePosition(id, asset string, entry, collateral float64, leverage int, long bool) *domain.Position {
	c := decimal.NewFromFloat(collateral)
	return &domain.Position{
		ID:         id,
		Trader:     testOwner,
		Asset:      asset,
		Collateral: c,
		EntryPrice: decimal.NewFromFloat(entry),
		Leverage:   leverage,
		Size:       c.Mul(decimal.NewFromInt(int64(leverage))),
		IsLong:     long,
		Timestamp:  time.Now(),
		IsActive:   true,
	}
}

const testOwner = "0x1111111111111111111111111111111111111111"

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
