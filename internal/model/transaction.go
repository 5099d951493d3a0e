package model

import "time"

// Sentinel hashes used before the network hash is known.
const (
	PendingHash = "pending"
	FailedHash  = "failed"
)

// TransactionType is the kind of submitted operation.
type TransactionType string

const (
	TxSwap            TransactionType = "SWAP"
	TxAddLiquidity    TransactionType = "ADD_LIQUIDITY"
	TxRemoveLiquidity TransactionType = "REMOVE_LIQUIDITY"
	TxCreatePair      TransactionType = "CREATE_PAIR"
)

// TransactionStatus is the lifecycle state of a submitted operation.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Leg is one side of a recorded operation in human-readable units.
type Leg struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// Transaction is a ledger record.
type Transaction struct {
	Hash      string            `json:"hash"`
	Type      TransactionType   `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Status    TransactionStatus `json:"status"`
	From      Leg               `json:"from"`
	To        Leg               `json:"to"`
	Executed  *Leg              `json:"executed,omitempty"`
}

// TransactionPatch holds the fields to merge into an existing record.
// Nil fields are left untouched.
type TransactionPatch struct {
	Hash     *string
	Status   *TransactionStatus
	From     *Leg
	To       *Leg
	Executed *Leg
}

// Apply merges the patch into tx.
func (p TransactionPatch) Apply(tx *Transaction) {
	if p.Hash != nil {
		tx.Hash = *p.Hash
	}
	if p.Status != nil {
		tx.Status = *p.Status
	}
	if p.From != nil {
		tx.From = *p.From
	}
	if p.To != nil {
		tx.To = *p.To
	}
	if p.Executed != nil {
		leg := *p.Executed
		tx.Executed = &leg
	}
}

// WithHash sets the hash field of the patch.
func (p TransactionPatch) WithHash(hash string) TransactionPatch {
	p.Hash = &hash
	return p
}

// WithStatus sets the status field of the patch.
func (p TransactionPatch) WithStatus(status TransactionStatus) TransactionPatch {
	p.Status = &status
	return p
}

// LedgerOp names a ledger mutation.
type LedgerOp string

const (
	LedgerAppend LedgerOp = "append"
	LedgerUpdate LedgerOp = "update"
	LedgerClear  LedgerOp = "clear"
)

// LedgerEvent describes one ledger mutation for downstream sinks.
type LedgerEvent struct {
	ID     string       `json:"id"`
	Op     LedgerOp     `json:"op"`
	Key    string       `json:"key,omitempty"`
	Record *Transaction `json:"record,omitempty"`
	At     time.Time    `json:"at"`
}
