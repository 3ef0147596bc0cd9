// Package fiscal implements the pure computations behind certified document
// emission: the chained document hash, the ATCUD code and the QR verification
// payload. Nothing in this package performs I/O or reads external state, so
// every function is deterministic and safe to call from inside a transaction.
package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	issueDateLayout = "2006-01-02"
	entryDateLayout = "2006-01-02T15:04:05"
)

// ComputeHash returns the chain hash of a fiscal document as a lowercase hex
// SHA-256 digest. The digest covers the UTF-8 bytes of the semicolon-joined
// string of, in order: issue date (YYYY-MM-DD), entry timestamp
// (YYYY-MM-DDTHH:MM:SS, seconds precision, no zone), the document number
// exactly as displayed, the gross total with two decimals and '.' separator,
// and the previous document's hash (empty string for the first document of a
// series).
//
// Both dates are normalized to UTC before formatting, so the same instant
// hashes identically no matter which location the driver loaded it in.
//
// Field order and formatting are frozen: changing either breaks the
// verifiability of every previously issued document.
func ComputeHash(issueDate, entryDate time.Time, fullNumber string, grossTotal decimal.Decimal, previousHash string) string {
	source := strings.Join([]string{
		issueDate.UTC().Format(issueDateLayout),
		entryDate.UTC().Format(entryDateLayout),
		fullNumber,
		grossTotal.StringFixed(2),
		previousHash,
	}, ";")

	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// FormatNumber renders the human-readable document number, e.g. "FT 2024/00001".
// The same string is displayed to users, printed on PDFs and fed to ComputeHash.
func FormatNumber(prefix string, fiscalYear int, number int64) string {
	return fmt.Sprintf("%s %d/%05d", prefix, fiscalYear, number)
}
