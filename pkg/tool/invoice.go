package tool

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// GenerateInvoiceNumber returns a unique human-readable invoice number,
// e.g. INV-20250901-8F3K2Q. One is issued per charge attempt.
func GenerateInvoiceNumber(at time.Time) string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), b.String())
}
