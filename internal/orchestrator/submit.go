package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"monoswap/internal/dex"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
	"monoswap/internal/tokens"
	"monoswap/internal/wallet"
)

// Submission is a sent operation awaiting confirmation.
type Submission struct {
	ID   string
	Hash common.Hash
	Type model.TransactionType

	done    chan struct{}
	receipt *types.Receipt
	err     error
}

// Wait blocks until the operation is mined or ctx ends. A reverted
// transaction returns an error with the receipt, classified by the revert
// reason when a replay of the call recovers one, else TransactionReverted.
func (s *Submission) Wait(ctx context.Context) (*types.Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return s.receipt, s.err
	}
}

// Done is closed once the confirmation outcome is known.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// approval is an ERC-20 spend the router needs before the main call.
type approval struct {
	token  common.Address
	symbol string
	amount *big.Int
}

// operation is everything submit needs to run one ledger-tracked call.
type operation struct {
	name      string
	txType    model.TransactionType
	from      model.Leg
	to        model.Leg
	approvals []approval
	build     func(deadline *big.Int) (wallet.TxRequest, error)
	// output is the token whose realized amount is read from the last pair
	// Swap event on success.
	output *model.Token
}

// submit runs the sequencing shared by every write: sentinel append,
// allowances, main call, hash rewrite, then asynchronous confirmation.
func (o *Orchestrator) submit(ctx context.Context, account common.Address, op operation) (*Submission, error) {
	id := uuid.NewString()
	logger := o.logger.With(zap.String("op_id", id), zap.String("type", string(op.txType)))

	o.inflight.Lock()
	locked := true
	defer func() {
		if locked {
			o.inflight.Unlock()
		}
	}()

	record := model.Transaction{
		Hash:   model.PendingHash,
		Type:   op.txType,
		Status: model.StatusPending,
		From:   op.from,
		To:     op.to,
	}
	if err := o.ledger.Append(ctx, record); err != nil {
		return nil, swaperr.New(swaperr.UnknownFailure, op.name, fmt.Errorf("record operation: %w", err))
	}

	fail := func(err error) (*Submission, error) {
		classified := swaperr.Classify(op.name, err)
		o.markFailed(ctx, logger)
		o.metrics.RecordSubmission(string(op.txType), "failed")
		logger.Warn("operation failed before submission",
			zap.String("kind", swaperr.KindOf(classified).String()),
			zap.Error(err),
		)
		return nil, classified
	}

	if err := o.ensureAllowances(ctx, account, op.approvals, logger); err != nil {
		return fail(err)
	}

	req, err := op.build(o.deadline())
	if err != nil {
		return fail(err)
	}
	hash, err := o.provider.SendTransaction(ctx, req)
	if err != nil {
		return fail(err)
	}

	if _, err := o.ledger.Update(context.WithoutCancel(ctx), model.PendingHash, model.TransactionPatch{}.WithHash(hash.Hex())); err != nil {
		logger.Warn("record transaction hash", zap.String("hash", hash.Hex()), zap.Error(err))
	}
	o.inflight.Unlock()
	locked = false

	o.metrics.RecordSubmission(string(op.txType), "submitted")
	logger.Info("transaction submitted", zap.String("hash", hash.Hex()), zap.String("label", req.Label))

	sub := &Submission{ID: id, Hash: hash, Type: op.txType, done: make(chan struct{})}
	call := ethereum.CallMsg{From: account, To: req.To, Value: req.Value, Data: req.Data}
	o.wg.Add(1)
	go o.confirm(sub, op, call, logger)
	return sub, nil
}

// markFailed settles the sentinel record so it never lingers.
func (o *Orchestrator) markFailed(ctx context.Context, logger *zap.Logger) {
	patch := model.TransactionPatch{}.WithStatus(model.StatusFailed).WithHash(model.FailedHash)
	if _, err := o.ledger.Update(context.WithoutCancel(ctx), model.PendingHash, patch); err != nil {
		logger.Warn("mark operation failed", zap.Error(err))
	}
}

func (o *Orchestrator) confirm(sub *Submission, op operation, call ethereum.CallMsg, logger *zap.Logger) {
	defer o.wg.Done()
	defer close(sub.done)

	start := o.now()
	hash := sub.Hash.Hex()
	receipt, err := o.chain.WaitMined(o.ctx, sub.Hash)
	if err != nil {
		sub.err = err
		logger.Warn("confirmation wait ended", zap.String("hash", hash), zap.Error(err))
		return
	}
	sub.receipt = receipt
	elapsed := o.now().Sub(start).Seconds()
	ctx := context.WithoutCancel(o.ctx)

	if receipt.Status != types.ReceiptStatusSuccessful {
		sub.err = o.revertError(ctx, op.name, call, receipt)
		if _, err := o.ledger.Update(ctx, hash, model.TransactionPatch{}.WithStatus(model.StatusFailed)); err != nil {
			logger.Warn("record revert", zap.String("hash", hash), zap.Error(err))
		}
		o.metrics.RecordConfirmation(string(op.txType), string(model.StatusFailed), elapsed)
		logger.Warn("transaction reverted",
			zap.String("hash", hash),
			zap.Uint64("block", receipt.BlockNumber.Uint64()),
			zap.String("kind", swaperr.KindOf(sub.err).String()),
		)
		return
	}

	patch := model.TransactionPatch{}.WithStatus(model.StatusCompleted)
	if op.output != nil {
		if leg, ok := o.executedLeg(receipt, *op.output, logger); ok {
			patch.Executed = &leg
		}
	}
	if _, err := o.ledger.Update(ctx, hash, patch); err != nil {
		logger.Warn("record confirmation", zap.String("hash", hash), zap.Error(err))
	}
	o.metrics.RecordConfirmation(string(op.txType), string(model.StatusCompleted), elapsed)
	logger.Info("transaction confirmed", zap.String("hash", hash), zap.Duration("elapsed", time.Duration(elapsed*float64(time.Second))))
}

// revertError replays call at the receipt's block to recover the revert
// reason. Reasons that classify to nothing known yield TransactionReverted.
func (o *Orchestrator) revertError(ctx context.Context, op string, call ethereum.CallMsg, receipt *types.Receipt) error {
	if _, err := o.chain.CallContract(ctx, call, receipt.BlockNumber); err != nil {
		if classified := swaperr.Classify(op, err); swaperr.KindOf(classified) != swaperr.UnknownFailure {
			return classified
		}
	}
	return swaperr.Errorf(swaperr.TransactionReverted, op, "transaction %s reverted", receipt.TxHash.Hex())
}

func (o *Orchestrator) executedLeg(receipt *types.Receipt, out model.Token, logger *zap.Logger) (model.Leg, bool) {
	events, err := o.decoder.Decode(receipt.Logs)
	if err != nil {
		logger.Debug("decode receipt", zap.Error(err))
		return model.Leg{}, false
	}
	swap, ok := events.LastSwap()
	if !ok {
		return model.Leg{}, false
	}
	return model.Leg{Symbol: out.Symbol, Amount: tokens.FormatUnits(swap.AmountOut(), out.Decimals)}, true
}

// ensureAllowances approves every token whose router allowance is short.
// Multiple approvals run concurrently.
func (o *Orchestrator) ensureAllowances(ctx context.Context, owner common.Address, approvals []approval, logger *zap.Logger) error {
	switch len(approvals) {
	case 0:
		return nil
	case 1:
		return o.ensureAllowance(ctx, owner, approvals[0], logger)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range approvals {
		a := a
		g.Go(func() error {
			return o.ensureAllowance(gctx, owner, a, logger)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) ensureAllowance(ctx context.Context, owner common.Address, a approval, logger *zap.Logger) error {
	current, err := dex.Allowance(ctx, o.chain, a.token, owner, o.cfg.Router)
	if err != nil {
		return fmt.Errorf("read %s allowance: %w", a.symbol, err)
	}
	if current.Cmp(a.amount) >= 0 {
		o.metrics.RecordApproval("skipped")
		return nil
	}

	data, err := dex.PackApprove(o.cfg.Router, dex.MaxApproval)
	if err != nil {
		return err
	}
	token := a.token
	hash, err := o.provider.SendTransaction(ctx, wallet.TxRequest{
		To:    &token,
		Data:  data,
		Label: "approve " + a.symbol,
	})
	if err != nil {
		o.metrics.RecordApproval("failed")
		return fmt.Errorf("approve %s: %w", a.symbol, err)
	}
	logger.Info("approval submitted", zap.String("token", a.symbol), zap.String("hash", hash.Hex()))

	receipt, err := o.chain.WaitMined(ctx, hash)
	if err != nil {
		o.metrics.RecordApproval("failed")
		return fmt.Errorf("wait for %s approval: %w", a.symbol, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		o.metrics.RecordApproval("failed")
		return swaperr.Errorf(swaperr.AllowanceInsufficient, "approve", "approval of %s reverted in %s", a.symbol, hash.Hex())
	}
	o.metrics.RecordApproval("approved")
	return nil
}
