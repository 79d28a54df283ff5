/*
transfer.go - Peer-to-peer coin transfers

PURPOSE:
  Moves coins from one account to another. The debit, the credit and both
  records (send on the sender, receive on the recipient) are one atomic
  unit.

VALIDATION ORDER:
  1. amount is a positive integer that fits
     in an int64 (MaxTransfer)              -> ErrInvalidAmount
  2. recipient email resolves to an account  -> ErrRecipientNotFound
  3. recipient is not the sender             -> ErrSelfTransferNotAllowed
  4. inside the unit: sender still exists    -> ErrAccountNotFound
     recipient still exists                  -> ErrRecipientNotFound
     sender balance >= amount                -> ErrInsufficientFunds

  The email lookup (2) is a plain read before the unit. Its result may be
  stale by the time the unit runs, so everything it implies is re-read
  inside the unit.

CONSERVATION:
  debit == credit, so sender+recipient is the same before and after.
*/
package generic

import (
	"context"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxTransfer is the largest amount one transfer may move.
var MaxTransfer = Amount{Value: decimal.NewFromInt(math.MaxInt64)}

// maxTransferExponent is the largest decimal exponent below MaxTransfer.
const maxTransferExponent = 18

type TransferResult struct {
	Sent           Transaction
	Received       Transaction
	SenderBalance  Amount
	RecipientID    UserID
	RecipientEmail string
}

// Transfer moves amount coins from senderID to the account whose profile
// email is recipientEmail.
func (l *Ledger) Transfer(ctx context.Context, senderID UserID, recipientEmail string, amount Amount) (TransferResult, error) {
	if !ValidTransferAmount(amount) {
		return TransferResult{}, ErrInvalidAmount
	}

	ctx = context.WithoutCancel(ctx)
	email := NormalizeEmail(recipientEmail)
	if email == "" {
		return TransferResult{}, ErrRecipientNotFound
	}

	recipient, err := l.Store.FindAccountByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return TransferResult{}, ErrRecipientNotFound
		}
		return TransferResult{}, l.fail(ctx, err)
	}
	if recipient.ID == senderID {
		return TransferResult{}, ErrSelfTransferNotAllowed
	}

	now := l.now()
	var result TransferResult
	err = l.Store.WithTx(ctx, func(tx Tx) error {
		sender, err := tx.GetAccount(ctx, senderID)
		if err != nil {
			return err
		}
		to, err := tx.GetAccount(ctx, recipient.ID)
		if err != nil {
			if IsNotFound(err) {
				return ErrRecipientNotFound
			}
			return err
		}

		if sender.Balance.LessThan(amount) {
			return &InsufficientFundsError{UserID: senderID, Available: sender.Balance, Requested: amount}
		}

		sender.Balance = sender.Balance.Sub(amount)
		sender.UpdatedAt = now
		to.Balance = to.Balance.Add(amount)
		to.UpdatedAt = now

		if err := tx.PutAccount(ctx, sender); err != nil {
			return err
		}
		if err := tx.PutAccount(ctx, to); err != nil {
			return err
		}

		sent, err := tx.AppendTransaction(ctx, Transaction{
			ID:           NewTransactionID(),
			AccountID:    sender.ID,
			Kind:         ActivitySend,
			Amount:       amount,
			Counterparty: to.Profile.Email,
		})
		if err != nil {
			return err
		}
		received, err := tx.AppendTransaction(ctx, Transaction{
			ID:           NewTransactionID(),
			AccountID:    to.ID,
			Kind:         ActivityReceive,
			Amount:       amount,
			Counterparty: sender.Profile.Email,
		})
		if err != nil {
			return err
		}

		result = TransferResult{
			Sent:           sent,
			Received:       received,
			SenderBalance:  sender.Balance,
			RecipientID:    to.ID,
			RecipientEmail: to.Profile.Email,
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, l.fail(ctx, err)
	}
	return result, nil
}

// ValidTransferAmount reports whether amount is a positive whole number no
// larger than MaxTransfer.
func ValidTransferAmount(amount Amount) bool {
	if !amount.IsPositive() {
		return false
	}
	// Checked before any comparison: comparing rescales to 10^exponent.
	if amount.Value.Exponent() > maxTransferExponent {
		return false
	}
	return amount.IsInteger() && !amount.GreaterThan(MaxTransfer)
}

// NormalizeEmail is the form used for equality lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
