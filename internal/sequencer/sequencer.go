// Package sequencer builds and parses human-readable document codes of the
// form PREFIX-NNNNNN-MM-YYYY, e.g. BCO-000042-03-2026.
package sequencer

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

var prefixes = map[repository.DocType]string{
	repository.TypeBudget:             "BGT",
	repository.TypeCreditLine:         "CRL",
	repository.TypeNeedSheet:          "FBE",
	repository.TypePurchaseRequest:    "DAC",
	repository.TypePurchaseOrder:      "BCO",
	repository.TypeProofOfService:     "ASF",
	repository.TypeWithdrawalDecision: "DRT",
	repository.TypePaymentOrder:       "OPA",
}

var codePattern = regexp.MustCompile(`^([A-Z]{3})-(\d{6,})-(\d{2})-(\d{4})$`)

// Code is a parsed document code.
type Code struct {
	Type  repository.DocType
	ID    int64
	Month time.Month
	Year  int
}

// Prefix returns the code prefix of t.
func Prefix(t repository.DocType) (string, bool) {
	p, ok := prefixes[t]
	return p, ok
}

// Generate renders the code of document id of type t created at at. The
// result depends only on its inputs.
func Generate(t repository.DocType, id int64, at time.Time) (string, error) {
	prefix, ok := prefixes[t]
	if !ok {
		return "", errors.InvalidInput("type", fmt.Sprintf("no code prefix for %q", t))
	}
	if id <= 0 {
		return "", errors.InvalidInput("id", "document id must be positive")
	}
	return fmt.Sprintf("%s-%06d-%02d-%04d", prefix, id, int(at.Month()), at.Year()), nil
}

// Parse validates code and splits it into its parts.
func Parse(code string) (Code, error) {
	m := codePattern.FindStringSubmatch(code)
	if m == nil {
		return Code{}, errors.InvalidInput("code", fmt.Sprintf("malformed document code %q", code))
	}

	var t repository.DocType
	for dt, p := range prefixes {
		if p == m[1] {
			t = dt
		}
	}
	if t == "" {
		return Code{}, errors.InvalidInput("code", fmt.Sprintf("unknown code prefix %q", m[1]))
	}

	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || id <= 0 {
		return Code{}, errors.InvalidInput("code", fmt.Sprintf("invalid id in code %q", code))
	}
	month, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return Code{}, errors.InvalidInput("code", fmt.Sprintf("invalid month in code %q", code))
	}
	year, _ := strconv.Atoi(m[4])

	return Code{Type: t, ID: id, Month: time.Month(month), Year: year}, nil
}

// ExtractID returns the numeric id embedded in code.
func ExtractID(code string) (int64, error) {
	c, err := Parse(code)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}
