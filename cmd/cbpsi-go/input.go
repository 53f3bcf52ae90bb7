package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

// readIdentifiers reads one identifier per line. Blank lines are skipped.
func readIdentifiers(r io.Reader) ([][]byte, error) {
	var ids [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ids = append(ids, []byte(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return ids, nil
}

// readRecords reads "identifier,value" rows. A first row whose value column
// is not an integer is treated as a header.
func readRecords(r io.Reader) ([]psi.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	var out []psi.Record
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read records: %w", err)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("read records: line %d: %w", line, err)
		}
		out = append(out, psi.Record{Identifier: []byte(strings.TrimSpace(row[0])), Value: v})
	}
}

func openInput(path string) (*os.File, error) {
	abs, err := psi.SecurePath(path)
	if err != nil {
		return nil, err
	}
	return os.Open(abs) // #nosec G304 -- abs validated by SecurePath
}

func loadIdentifiers(path string) ([][]byte, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readIdentifiers(f)
}

func loadRecords(path string) ([]psi.Record, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRecords(f)
}
