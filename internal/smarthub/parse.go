package smarthub

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TooltipClass is the class SmartHub puts on the chart tooltip cell
const TooltipClass = "highcharts-tooltip"

var (
	// ErrTooltipNotFound means the page has no td with TooltipClass
	ErrTooltipNotFound = errors.New("usage tooltip not found")
	// ErrNotNumeric means the tooltip cell text is not a number
	ErrNotNumeric = errors.New("usage tooltip is not numeric")
)

// ParseUsage reads an HTML document and returns the number in the first
// <td class="highcharts-tooltip"> in document order. Values outside the
// float64 range are reported as ErrNotNumeric.
//
// The page is tokenized rather than run through the HTML5 tree builder: the
// tree builder drops table cells that are not inside a table, and the portal
// renders the tooltip cell on its own.
func ParseUsage(r io.Reader) (float64, error) {
	text, err := tooltipText(html.NewTokenizer(r))
	if err != nil {
		return 0, err
	}

	text = strings.TrimSpace(text)
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrNotNumeric, text, err)
	}
	return value, nil
}

// tooltipText returns the text content of the first tooltip cell
func tooltipText(z *html.Tokenizer) (string, error) {
	var sb strings.Builder
	depth := 0 // td nesting inside the tooltip cell, 0 while searching

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("reading HTML: %w", err)
			}
			if depth > 0 {
				// unterminated cell, take what we have
				return sb.String(), nil
			}
			return "", ErrTooltipNotFound

		case html.StartTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Td {
				continue
			}
			if depth > 0 {
				depth++
			} else if hasClass(tok, TooltipClass) {
				depth = 1
			}

		case html.SelfClosingTagToken:
			// <td class="..."/> is an empty cell
			if depth == 0 {
				if tok := z.Token(); tok.DataAtom == atom.Td && hasClass(tok, TooltipClass) {
					return "", nil
				}
			}

		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			if tok := z.Token(); tok.DataAtom == atom.Td {
				depth--
				if depth == 0 {
					return sb.String(), nil
				}
			}

		case html.TextToken:
			if depth > 0 {
				sb.WriteString(z.Token().Data)
			}
		}
	}
}

func hasClass(tok html.Token, class string) bool {
	for _, attr := range tok.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
