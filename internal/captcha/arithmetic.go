package captcha

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenLength is the length from which recognized text is treated as an
// opaque alphanumeric token instead of an arithmetic expression.
const tokenLength = 6

// the portal only asks for small results when it shows arithmetic
const (
	guessMin = 0
	guessMax = 20
)

// OCR confusions in operand positions.
var digitConfusables = map[rune]rune{
	'O': '0', 'o': '0', 'D': '0', 'Q': '0',
	'I': '1', 'l': '1', '|': '1', 'i': '1',
	'Z': '2', 'z': '2',
	'S': '5', 's': '5',
	'G': '6', 'b': '6',
	'B': '8', 'g': '8',
}

var operatorAliases = map[rune]rune{
	'+': '+',
	'-': '-', '−': '-',
	'*': '*', '×': '*', 'x': '*', 'X': '*',
	'/': '/', '÷': '/', ':': '/',
}

// OCR confusions in the operator position.
var operatorConfusables = map[rune]rune{
	'T': '+', 't': '+',
	'|': '-', '¦': '-', '—': '-', '–': '-', '_': '-', '~': '-',
}

var guessOrder = []rune{'+', '-', '*', '/'}

func fixDigit(r rune) (rune, bool) {
	if r >= '0' && r <= '9' {
		return r, true
	}
	fixed, ok := digitConfusables[r]
	return fixed, ok
}

func fixOperator(r rune) (rune, bool) {
	if op, ok := operatorAliases[r]; ok {
		return op, true
	}
	op, ok := operatorConfusables[r]
	return op, ok
}

// CorrectDigits replaces every character that OCR commonly confuses with a
// digit by that digit. Other characters are kept. Applying it twice gives the
// same result as applying it once.
func CorrectDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if fixed, ok := fixDigit(r); ok {
			return fixed
		}
		return r
	}, s)
}

func fixOperand(runes []rune) (int, bool) {
	if len(runes) == 0 {
		return 0, false
	}
	digits := make([]rune, len(runes))
	for i, r := range runes {
		d, ok := fixDigit(r)
		if !ok {
			return 0, false
		}
		digits[i] = d
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, false
	}
	return n, true
}

// evaluate applies op. Division only succeeds on an exact integer quotient.
func evaluate(left int, op rune, right int) (int, bool) {
	switch op {
	case '+':
		return left + right, true
	case '-':
		return left - right, true
	case '*':
		return left * right, true
	case '/':
		if right == 0 || left%right != 0 {
			return 0, false
		}
		return left / right, true
	}
	return 0, false
}

// Decide turns recognized captcha text into the answer to submit.
//
// Text of six or more characters is a token and comes back upper-cased.
// Shorter text is read as `<left><operator><right>`, trying an exact three
// character layout, a general expression match, an aggressive correction that
// guesses the operator by position and finally a match on the text stripped of
// everything but digits and operators. If nothing evaluates, the trimmed text
// is returned as is and the portal gets to reject it.
func Decide(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) >= tokenLength {
		return strings.ToUpper(trimmed)
	}

	compact := []rune(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, trimmed))

	strategies := []func([]rune) (int, bool){
		solveExact,
		solveGeneral,
		solveAggressive,
		solveStripped,
	}
	for _, strategy := range strategies {
		result, ok := strategy(compact)
		if ok {
			return strconv.Itoa(result)
		}
	}
	return trimmed
}

func solveExact(runes []rune) (int, bool) {
	if len(runes) != 3 {
		return 0, false
	}
	left, okLeft := fixDigit(runes[0])
	op, okOp := fixOperator(runes[1])
	right, okRight := fixDigit(runes[2])
	if !okLeft || !okOp || !okRight {
		return 0, false
	}
	return evaluate(int(left-'0'), op, int(right-'0'))
}

var expressionRegex = regexp.MustCompile(`^(\d+)([+\-*/])(\d+)$`)

func matchExpression(s string) (int, bool) {
	groups := expressionRegex.FindStringSubmatch(s)
	if groups == nil {
		return 0, false
	}
	left, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, false
	}
	right, err := strconv.Atoi(groups[3])
	if err != nil {
		return 0, false
	}
	return evaluate(left, rune(groups[2][0]), right)
}

// solveGeneral allows multi-digit operands. Operator symbols are normalized
// first, everything else goes through the digit corrections.
func solveGeneral(runes []rune) (int, bool) {
	normalized := make([]rune, len(runes))
	for i, r := range runes {
		if op, ok := operatorAliases[r]; ok {
			normalized[i] = op
			continue
		}
		if d, ok := fixDigit(r); ok {
			normalized[i] = d
			continue
		}
		normalized[i] = r
	}
	return matchExpression(string(normalized))
}

func solveAggressive(runes []rune) (int, bool) {
	if len(runes) < 3 {
		return 0, false
	}

	// an unreadable middle character of a three character captcha gets each
	// operator in turn, the first plausible result wins
	if len(runes) == 3 {
		if _, ok := fixOperator(runes[1]); !ok {
			left, okLeft := fixDigit(runes[0])
			right, okRight := fixDigit(runes[2])
			if !okLeft || !okRight {
				return 0, false
			}
			for _, op := range guessOrder {
				result, ok := evaluate(int(left-'0'), op, int(right-'0'))
				if ok && result >= guessMin && result <= guessMax {
					return result, true
				}
			}
			return 0, false
		}
	}

	for i := 1; i < len(runes)-1; i++ {
		op, ok := fixOperator(runes[i])
		if !ok {
			continue
		}
		left, okLeft := fixOperand(runes[:i])
		right, okRight := fixOperand(runes[i+1:])
		if !okLeft || !okRight {
			continue
		}
		if result, ok := evaluate(left, op, right); ok {
			return result, true
		}
	}
	return 0, false
}

var strippedRegex = regexp.MustCompile(`[^0-9+\-×*/÷]`)

func solveStripped(runes []rune) (int, bool) {
	stripped := strippedRegex.ReplaceAllString(string(runes), "")
	stripped = strings.NewReplacer("×", "*", "÷", "/").Replace(stripped)
	return matchExpression(stripped)
}
