package sheet

import (
	"fmt"
	"regexp"
	"strconv"
)

// addressPattern is the address grammar: one or more column letters followed
// by a 1-based row number with no leading zero.
var addressPattern = regexp.MustCompile(`^[A-Z]+[1-9][0-9]*$`)

// maxColumnLetters bounds the column part of a decoded address
const maxColumnLetters = 7

// IsAddress reports whether s matches the cell address grammar.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// EncodeAddress converts 0-based row and column indices to a spreadsheet
// address. Columns use bijective base-26 letters (A..Z, AA, AB, ...), rows
// are 1-based decimal, e.g. (12, 51) -> "AZ13".
func EncodeAddress(row, column int) string {
	letters := make([]byte, 0, 3)
	n := column + 1
	for n > 0 {
		n--
		letters = append(letters, byte('A'+n%26))
		n /= 26
	}
	// letters accumulated least-significant first
	for i, j := 0, len(letters)-1; i < j; i, j = i+1, j-1 {
		letters[i], letters[j] = letters[j], letters[i]
	}
	return string(letters) + strconv.Itoa(row+1)
}

// DecodeAddress is the exact inverse of EncodeAddress. It fails with a
// parse-kind error when the string does not match the address grammar.
func DecodeAddress(address string) (row, column int, err error) {
	if !addressPattern.MatchString(address) {
		return 0, 0, newCellError(ErrParse, fmt.Sprintf("invalid cell address: %q", address))
	}

	letterEnd := 0
	for letterEnd < len(address) && address[letterEnd] >= 'A' && address[letterEnd] <= 'Z' {
		letterEnd++
	}

	// seven letters already addresses over eight billion columns; anything
	// longer would overflow the accumulator
	if letterEnd > maxColumnLetters {
		return 0, 0, newCellError(ErrParse, fmt.Sprintf("column out of range in address: %q", address))
	}

	column = 0
	for i := 0; i < letterEnd; i++ {
		column = column*26 + int(address[i]-'A') + 1
	}
	column--

	rowNum, convErr := strconv.Atoi(address[letterEnd:])
	if convErr != nil {
		return 0, 0, newCellError(ErrParse, fmt.Sprintf("invalid row in address: %q", address))
	}
	return rowNum - 1, column, nil
}
