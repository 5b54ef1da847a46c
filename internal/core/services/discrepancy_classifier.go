package services

import (
	"strings"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// nsfMarkers and feeMarkers are descriptor fragments bank feeds commonly use.
// Matching is case-insensitive against the raw description.
var nsfMarkers = []string{"nsf", "insufficient funds", "returned item", "payment returned", "chargeback"}

var feeMarkers = []string{"service charge", "monthly fee", "maintenance fee", "wire fee", "overdraft fee", "bank fee"}

func descriptionContainsAny(description string, markers []string) bool {
	d := strings.ToLower(description)
	for _, m := range markers {
		if strings.Contains(d, m) {
			return true
		}
	}
	return false
}

// ClassifyMatchedDiscrepancy explains an amount disagreement between a
// matched transaction and its obligation. siblings are the other
// transactions already linked to the same obligation; they drive duplicate
// and split-payment detection. Returns empty when nothing is anomalous.
func ClassifyMatchedDiscrepancy(tx domain.BankTransaction, ob domain.PaymentObligation, siblings []domain.BankTransaction, withinTolerance bool) domain.DiscrepancyType {
	if descriptionContainsAny(tx.Description, nsfMarkers) {
		return domain.DiscrepancyNSF
	}

	paid := tx.Amount.Abs()
	expected := ob.ExpectedAmount.Abs()

	for _, sib := range siblings {
		if sib.TransactionID == tx.TransactionID {
			continue
		}
		if sib.Amount.Abs().Equal(paid) && sameDay(sib.Date, tx.Date) {
			return domain.DiscrepancyDuplicate
		}
	}

	if withinTolerance {
		return ""
	}

	if paid.LessThan(expected) {
		// Several partial payments that together settle the obligation are a
		// split payment rather than a shortfall.
		total := paid
		for _, sib := range siblings {
			if sib.TransactionID == tx.TransactionID {
				continue
			}
			total = total.Add(sib.Amount.Abs())
		}
		if total.GreaterThanOrEqual(expected) {
			return domain.DiscrepancySplitPayment
		}
		return domain.DiscrepancyPartialPayment
	}

	if paid.GreaterThan(expected) {
		return domain.DiscrepancyOverpayment
	}
	return ""
}

// ClassifyUnmatchedDiscrepancy explains a transaction that matched nothing.
func ClassifyUnmatchedDiscrepancy(tx domain.BankTransaction) domain.DiscrepancyType {
	if descriptionContainsAny(tx.Description, nsfMarkers) {
		return domain.DiscrepancyNSF
	}
	if descriptionContainsAny(tx.Description, feeMarkers) {
		return domain.DiscrepancyBankFee
	}
	return domain.DiscrepancyUnrecognized
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
