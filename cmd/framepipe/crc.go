package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readCRCFile loads one hex checksum per line. Blank lines and lines
// starting with '#' are ignored.
func readCRCFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var crcs []uint32
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(text, "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		crcs = append(crcs, uint32(v))
	}
	return crcs, sc.Err()
}

func writeCRCFile(path string, crcs []uint32) error {
	var b strings.Builder
	for _, c := range crcs {
		fmt.Fprintf(&b, "%08x\n", c)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
