package purchase

import (
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
)

const codeSuffixLength = 6

// CodeGenerator returns a human readable ticket code. Codes are not
// guaranteed unique; the ticket ledger rejects duplicates.
type CodeGenerator func(now time.Time) string

// GenerateTicketCode builds TK-<base36 unix millis>-<6 random chars>.
func GenerateTicketCode(now time.Time) string {
	suffix := strings.ToUpper(shortuuid.New())
	suffix = suffix[len(suffix)-codeSuffixLength:]

	return "TK-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + "-" + suffix
}
