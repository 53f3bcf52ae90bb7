package psi

import "fmt"

// Record is one entry of Party 2's set W.
type Record struct {
	Identifier []byte
	Value      int64
}

// StringIdentifiers converts string identifiers to the byte form used on the
// protocol boundary.
func StringIdentifiers(ids []string) [][]byte {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = []byte(id)
	}
	return out
}

// ValidateIdentifiers checks Party 1's input before anything is sent.
func ValidateIdentifiers(ids [][]byte, maxSize int) error {
	const op = "ValidateIdentifiers"
	if maxSize > 0 && len(ids) > maxSize {
		return Errorf(op, ErrSizeLimitExceeded, "%d identifiers exceeds limit %d", len(ids), maxSize)
	}
	for i, id := range ids {
		if len(id) == 0 {
			return Errorf(op, ErrInvalidInput, "identifier %d is empty", i)
		}
	}
	return nil
}

// ValidateRecords checks Party 2's input before anything is sent.
func ValidateRecords(records []Record, maxSize int) error {
	const op = "ValidateRecords"
	if maxSize > 0 && len(records) > maxSize {
		return Errorf(op, ErrSizeLimitExceeded, "%d records exceeds limit %d", len(records), maxSize)
	}
	for i, r := range records {
		if len(r.Identifier) == 0 {
			return Errorf(op, ErrInvalidInput, "record %d has an empty identifier", i)
		}
	}
	return nil
}

// Identifiers returns the identifier column of records.
func Identifiers(records []Record) [][]byte {
	out := make([][]byte, len(records))
	for i, r := range records {
		out[i] = r.Identifier
	}
	return out
}

func (r Record) String() string {
	return fmt.Sprintf("record{len(id)=%d}", len(r.Identifier))
}
