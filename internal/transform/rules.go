package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/config"
	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/validate"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// applyRules runs the enabled business rules in a fixed order and returns
// the surviving records with the issues the rules raised.
func applyRules(recs []record, rules config.Rules) ([]record, []Issue) {
	var issues []Issue

	if rules.RemoveDuplicates {
		var removed int
		recs, removed = removeDuplicates(recs)
		if removed > 0 {
			issues = append(issues, Issue{
				Type:    IssueDuplicates,
				Message: fmt.Sprintf("Removed %d duplicate transactions", removed),
				Count:   removed,
			})
		}
	}

	if rules.StandardizeNames {
		standardizeNames(recs)
	}

	if rules.AdjustSmallAmounts {
		if n := adjustSmallAmounts(recs); n > 0 {
			issues = append(issues, Issue{
				Type:    IssueSmallAmounts,
				Message: fmt.Sprintf("Adjusted %d amounts smaller than %s to %s", n, validate.MinAmount, validate.MinAmount),
				Count:   n,
			})
		}
	}

	if rules.DerivePaidUpdatedAt {
		derivePaidUpdatedAt(recs)
	}

	if rules.CheckDateConsistency {
		if ids := paidBeforeCreated(recs); len(ids) > 0 {
			issues = append(issues, Issue{
				Type:    IssueDateConsistency,
				Message: fmt.Sprintf("Found %d paid transactions where paid_at is before created_at", len(ids)),
				Count:   len(ids),
				IDs:     ids,
			})
		}
	}

	return recs, issues
}

// removeDuplicates keeps the first record for each charge ID.
func removeDuplicates(recs []record) ([]record, int) {
	seen := make(map[string]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, len(recs) - len(out)
}

func standardizeNames(recs []record) {
	caser := cases.Title(language.Und)
	for i := range recs {
		recs[i].CompanyName = standardizeName(caser, recs[i].CompanyName)
	}
}

// standardizeName trims, collapses inner whitespace and title-cases name.
func standardizeName(caser cases.Caser, name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return core.UnknownCompanyName
	}
	return validate.Truncate(caser.String(name), core.MaxCompanyNameLen)
}

// adjustSmallAmounts raises amounts below 0.01 to 0.01 and returns how many
// changed.
func adjustSmallAmounts(recs []record) int {
	n := 0
	for i := range recs {
		if recs[i].Amount.LessThan(validate.MinAmount) {
			recs[i].Amount = validate.MinAmount
			n++
		}
	}
	return n
}

// derivePaidUpdatedAt sets updated_at on paid charges to paid_at, or to
// created_at when the charge has no paid_at.
func derivePaidUpdatedAt(recs []record) {
	for i := range recs {
		if recs[i].Status != core.StatusPaid {
			continue
		}
		if recs[i].PaidAt != nil {
			recs[i].UpdatedAt = core.Ptr(*recs[i].PaidAt)
		} else {
			recs[i].UpdatedAt = core.Ptr(recs[i].CreatedAt)
		}
	}
}

// paidBeforeCreated returns the IDs of paid charges whose paid_at precedes
// created_at. The records are not changed.
func paidBeforeCreated(recs []record) []string {
	var ids []string
	for _, r := range recs {
		if r.Status != core.StatusPaid || r.PaidAt == nil || r.CreatedAt.IsZero() {
			continue
		}
		if !validate.DateOrder(r.CreatedAt, *r.PaidAt, "created_at", "paid_at").Valid {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// deriveCompanies returns one company per distinct company ID, named after
// its first record.
func deriveCompanies(recs []record, now time.Time) []core.Company {
	seen := make(map[string]bool)
	var out []core.Company
	for _, r := range recs {
		if seen[r.CompanyID] {
			continue
		}
		seen[r.CompanyID] = true
		out = append(out, core.Company{
			CompanyID:   r.CompanyID,
			CompanyName: r.CompanyName,
			CreatedAt:   now,
		})
	}
	return out
}

func deriveCharges(recs []record) []core.Charge {
	out := make([]core.Charge, len(recs))
	for i, r := range recs {
		out[i] = core.Charge{
			ID:        r.ID,
			CompanyID: r.CompanyID,
			Amount:    r.Amount,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out
}
