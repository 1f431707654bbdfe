package continuation

import (
	"fmt"
	"strings"

	"github.com/ewilliams-labs/setlist/internal/core/ports"
)

// ContinuationRequest annotates req with how many items already exist and
// asks the generator to carry on numbering from the next one.
func ContinuationRequest(req ports.GenerationRequest, have, want int) ports.GenerationRequest {
	next := req
	next.ContinueFrom = have

	var b strings.Builder
	b.WriteString(req.UserPrompt)
	b.WriteString("\n\nCONTINUATION: ")
	fmt.Fprintf(&b, "%d items have already been returned", have)
	if want > 0 {
		fmt.Fprintf(&b, " out of %d required", want)
	}
	fmt.Fprintf(&b, ". Continue the JSON array from item %d. ", have+1)
	b.WriteString("Start with the next item and continue until you reach the required total. ")
	b.WriteString("Return only the new items as a JSON array that starts with [ and ends with ].")
	next.UserPrompt = b.String()
	return next
}

// SpliceArrayText is a best-effort text merge of two array fragments: the
// outer brackets of both are removed and the remainders joined with a comma.
// It is only used when a fragment cannot be parsed by itself, and its output
// must still pass strict parsing before anything is taken from it.
func SpliceArrayText(existing, next string) string {
	head := strings.TrimSpace(existing)
	head = strings.TrimPrefix(head, "[")
	head = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(head), "]"))
	head = strings.TrimSuffix(head, ",")

	tail := strings.TrimSpace(next)
	tail = strings.TrimPrefix(tail, "[")
	tail = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(tail), "]"))
	tail = strings.TrimPrefix(tail, ",")

	switch {
	case head == "":
		return "[" + tail + "]"
	case tail == "":
		return "[" + head + "]"
	default:
		return "[" + head + "," + tail + "]"
	}
}
