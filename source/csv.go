package source

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/campaign"
)

const bom = "\ufeff"

var (
	leadAliases = map[string][]string{
		"email": {"email", "e-mail", "mail", "email_address"},
	}
	smtpAliases = map[string][]string{
		"host":       {"host", "server", "smtp_host", "smtp_server"},
		"port":       {"port", "smtp_port"},
		"username":   {"username", "user", "login"},
		"password":   {"password", "pwd", "pass"},
		"from_email": {"from_email", "from", "email", "sender"},
		"from_name":  {"from_name", "name", "sender_name"},
		"security":   {"security", "encryption", "tls"},
	}
)

// table is a sheet of leads or SMTPs. header keeps the names as written,
// keys holds their lower-cased form for alias lookup.
type table struct {
	header []string
	keys   []string
	rows   [][]string
}

func newTable(header []string, rows [][]string) *table {
	t := &table{header: make([]string, len(header)), keys: make([]string, len(header))}
	for i, h := range header {
		t.header[i] = strings.TrimSpace(strings.TrimPrefix(h, bom))
		t.keys[i] = strings.ToLower(t.header[i])
	}
	for _, row := range rows {
		if !blank(row) {
			t.rows = append(t.rows, row)
		}
	}
	return t
}

// readTable reads a workbook or a CSV file depending on the extension.
func readTable(path string) (*table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readWorkbook(path)
	}
	return readCSV(path)
}

func readCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &table{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		rows = append(rows, row)
	}
	return newTable(header, rows), nil
}

// column finds the first header matching one of names, -1 if none does.
func (t *table) column(names ...string) int {
	for _, n := range names {
		for i, k := range t.keys {
			if k == n {
				return i
			}
		}
	}
	return -1
}

func (t *table) columns(aliases map[string][]string) map[string]int {
	cols := make(map[string]int, len(aliases))
	for field, names := range aliases {
		cols[field] = t.column(names...)
	}
	return cols
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// readLeads keeps every column of a lead as a placeholder field keyed by its
// header as written. The address is also available as "email".
func readLeads(path string) ([]campaign.Recipient, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if len(t.header) == 0 {
		return []campaign.Recipient{}, nil
	}
	emailCol := t.columns(leadAliases)["email"]
	if emailCol < 0 {
		return nil, errors.Errorf("%s has no email column", path)
	}

	leads := make([]campaign.Recipient, 0, len(t.rows))
	for _, row := range t.rows {
		fields := make(map[string]string, len(t.header)+1)
		for i, h := range t.header {
			if h != "" {
				fields[h] = cell(row, i)
			}
		}
		email := cell(row, emailCol)
		fields["email"] = email
		leads = append(leads, campaign.Recipient{Email: email, Fields: fields})
	}
	return leads, nil
}

func readSMTPs(path string) ([]campaign.SMTPCredential, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if len(t.header) == 0 {
		return []campaign.SMTPCredential{}, nil
	}
	cols := t.columns(smtpAliases)
	if cols["host"] < 0 {
		return nil, errors.Errorf("%s has no host column", path)
	}

	creds := make([]campaign.SMTPCredential, 0, len(t.rows))
	for n, row := range t.rows {
		c := campaign.SMTPCredential{
			Host:      cell(row, cols["host"]),
			Username:  cell(row, cols["username"]),
			Password:  cell(row, cols["password"]),
			FromEmail: cell(row, cols["from_email"]),
			FromName:  cell(row, cols["from_name"]),
			Port:      587,
		}
		if c.Host == "" {
			return nil, errors.Errorf("%s row %d: empty host", path, n+2)
		}
		if p := cell(row, cols["port"]); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil || port < 1 || port > 65535 {
				return nil, errors.Errorf("%s row %d: bad port %q", path, n+2, p)
			}
			c.Port = port
		}
		if err := applySecurity(&c, cell(row, cols["security"])); err != nil {
			return nil, errors.Wrapf(err, "%s row %d", path, n+2)
		}
		creds = append(creds, c)
	}
	return creds, nil
}

// applySecurity maps the security column. An empty value means implicit TLS on
// port 465 and STARTTLS elsewhere.
func applySecurity(c *campaign.SMTPCredential, v string) error {
	switch strings.ToLower(v) {
	case "":
		c.ImplicitTLS = c.Port == 465
		c.TLS = !c.ImplicitTLS
	case "tls", "starttls", "true", "yes":
		c.TLS = true
	case "ssl", "smtps", "implicit":
		c.ImplicitTLS = true
	case "none", "plain", "false", "no":
	default:
		return errors.Errorf("unknown security %q", v)
	}
	return nil
}
