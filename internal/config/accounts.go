package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Account is one accounts-file record, spec §6: "id,user,pass CSV".
type Account struct {
	ID   string
	User string
	Pass string
}

// LoadAccounts parses the accounts file at path: one record per line, CSV of
// id,user,pass, with backslash escaping for \n, \r, \t, \\, \", \, inside
// fields (spec §6).
func LoadAccounts(path string) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var accounts []Account
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, err := splitEscapedCSV(line)
		if err != nil {
			return nil, fmt.Errorf("accounts: line %d: %w", lineNo, err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("accounts: line %d: expected 3 fields, got %d", lineNo, len(fields))
		}
		accounts = append(accounts, Account{ID: fields[0], User: fields[1], Pass: fields[2]})
	}
	return accounts, scanner.Err()
}

// Authenticator builds a broker.Authenticator-shaped closure checking
// (user, pass) against the loaded accounts. Returned as a plain func value
// so internal/broker need not import internal/config.
func Authenticator(accounts []Account) func(user, pass string) bool {
	byUser := make(map[string]string, len(accounts))
	for _, a := range accounts {
		byUser[a.User] = a.Pass
	}
	return func(user, pass string) bool {
		want, ok := byUser[user]
		return ok && want == pass
	}
}

// splitEscapedCSV splits a single line into comma-separated fields,
// unescaping \n, \r, \t, \\, \", and \, (an escaped literal comma) as it
// goes, per spec §6's accounts-file grammar.
func splitEscapedCSV(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder

	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			switch c {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case 't':
				cur.WriteByte('\t')
			case '\\':
				cur.WriteByte('\\')
			case '"':
				cur.WriteByte('"')
			case ',':
				cur.WriteByte(',')
			default:
				return nil, fmt.Errorf("unrecognised escape sequence \\%c", c)
			}
			escaped = false
		case c == '\\':
			escaped = true
		case c == ',':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		return nil, fmt.Errorf("trailing unescaped backslash")
	}
	fields = append(fields, cur.String())
	return fields, nil
}
