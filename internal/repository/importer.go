package repository

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"net"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"urlguard/internal/config"
)

// Names every hosts file carries that are not feed entries.
var hostsBoilerplate = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"local":                 true,
	"broadcasthost":         true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
	"0.0.0.0":               true,
}

// ParseAndStream reads a feed in the source's format and sends one
// BlockedDomain per host. Feeds that list full URLs are reduced to hosts.
func ParseAndStream(reader io.Reader, outChan chan<- BlockedDomain, src config.SourceConfig) {
	defer close(outChan)

	switch src.Format {
	case "csv":
		parseCSV(reader, outChan, src)
	case "text":
		parseText(reader, outChan, src)
	case "json":
		parseJSON(reader, outChan, src)
	case "hosts":
		fallthrough
	default:
		parseHosts(reader, outChan, src)
	}
}

// NormalizeEntry turns a feed entry (host, host/path or URL) into a
// lowercase host. It returns "" for entries that are not usable.
func NormalizeEntry(entry string) string {
	entry = strings.ToLower(strings.TrimSpace(entry))
	if entry == "" {
		return ""
	}
	if strings.Contains(entry, "://") {
		u, err := url.Parse(entry)
		if err != nil {
			return ""
		}
		entry = u.Hostname()
	} else {
		if i := strings.IndexAny(entry, "/?#"); i >= 0 {
			entry = entry[:i]
		}
		if h, _, err := net.SplitHostPort(entry); err == nil {
			entry = h
		}
	}
	entry = strings.TrimSuffix(entry, ".")
	if entry == "" || hostsBoilerplate[entry] || strings.ContainsAny(entry, " \t") {
		return ""
	}
	return entry
}

func emit(outChan chan<- BlockedDomain, src config.SourceConfig, entry string) {
	host := NormalizeEntry(entry)
	if host == "" {
		return
	}
	outChan <- BlockedDomain{
		Domain: host,
		Source: src.Name,
		Action: ActionBlock,
	}
}

// 1. HOSTS Format Parser (0.0.0.0 domain.com)
func parseHosts(reader io.Reader, outChan chan<- BlockedDomain, src config.SourceConfig) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) >= 2 {
			emit(outChan, src, parts[1])
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Failed reading hosts feed %s: %v", src.Name, err)
	}
}

// 2. TEXT Format Parser (one host or URL per line)
func parseText(reader io.Reader, outChan chan<- BlockedDomain, src config.SourceConfig) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		emit(outChan, src, line)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Failed reading text feed %s: %v", src.Name, err)
	}
}

// 3. CSV Format Parser (Column aware)
func parseCSV(reader io.Reader, outChan chan<- BlockedDomain, src config.SourceConfig) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	// Read Header
	header, err := csvReader.Read()
	if err != nil {
		log.Printf("Failed to read CSV header for %s: %v", src.Name, err)
		return
	}

	// Find the index of the target column
	targetIndex := -1
	targetCol := strings.ToLower(src.TargetColumn)

	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) == targetCol {
			targetIndex = i
			break
		}
	}

	if targetIndex == -1 {
		log.Printf("Column '%s' not found in CSV for %s", src.TargetColumn, src.Name)
		return
	}

	// Stream rows
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		if len(record) > targetIndex {
			emit(outChan, src, record[targetIndex])
		}
	}
}

// 4. JSON Format Parser: an array of strings, or of objects whose
// TargetColumn field (default "url") holds the entry, as in PhishTank dumps.
func parseJSON(reader io.Reader, outChan chan<- BlockedDomain, src config.SourceConfig) {
	field := src.TargetColumn
	if field == "" {
		field = "url"
	}

	dec := json.NewDecoder(reader)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		log.Printf("JSON feed %s is not an array (token %v, err %v)", src.Name, tok, err)
		return
	}

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			log.Printf("Malformed JSON feed %s: %v", src.Name, err)
			return
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			emit(outChan, src, s)
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		if v, ok := obj[field].(string); ok {
			emit(outChan, src, v)
		}
	}
}
