/*
balance.go - Balance audit against the record history

PURPOSE:
  The account document carries the balance, and every change to it has a
  record. So the balance can always be recomputed from the records:

    derived = sum(amount of credits) - sum(amount of sends)

  Audit compares the two. Any drift means a write bypassed the ledger.

EXAMPLE:
  captcha +10, spin +3, send 5, receive 2   -> derived 10
  stored balance 10                         -> consistent

SEE ALSO:
  - ledger.go: The only writer of balances and records
  - cmd/audit: Operator tool around Audit
*/
package generic

import (
	"context"
	"math"
)

// AuditHistoryLimit bounds the records read by one audit.
const AuditHistoryLimit = math.MaxInt32

// BalanceAudit is the result of comparing a stored balance with its records.
type BalanceAudit struct {
	UserID  UserID
	Stored  Amount
	Derived Amount
	Records int
}

// Drift is stored minus derived. Zero when consistent.
func (a BalanceAudit) Drift() Amount {
	return a.Stored.Sub(a.Derived)
}

func (a BalanceAudit) Consistent() bool {
	return a.Drift().IsZero()
}

// SumDeltas returns the net balance change of txs.
func SumDeltas(txs []Transaction) Amount {
	total := Coins(0)
	for _, tx := range txs {
		total = total.Add(tx.Delta())
	}
	return total
}

// Audit recomputes the balance of id from its full history.
func (l *Ledger) Audit(ctx context.Context, id UserID) (BalanceAudit, error) {
	acct, err := l.Store.GetAccount(ctx, id)
	if err != nil {
		return BalanceAudit{}, l.fail(ctx, err)
	}
	txs, err := l.Store.ListTransactions(ctx, id, AuditHistoryLimit)
	if err != nil {
		return BalanceAudit{}, l.fail(ctx, err)
	}
	return BalanceAudit{
		UserID:  id,
		Stored:  acct.Balance,
		Derived: SumDeltas(txs),
		Records: len(txs),
	}, nil
}
