package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileLedger persists the chain as one JSON entry per line, appended
// and fsynced on every event. The tail is cached in memory so appends
// do not re-read the file.
type FileLedger struct {
	path string
	file *os.File
	tail Entry
	mu   sync.Mutex
}

// NewFileLedger opens the ledger at path, creating it with a genesis
// entry when absent or empty.
func NewFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	fl := &FileLedger{path: path, file: file}

	entries, err := fl.readEntries()
	if err != nil {
		file.Close()
		return nil, err
	}

	if len(entries) == 0 {
		genesis, err := genesisEntry(uuid.NewString())
		if err != nil {
			file.Close()
			return nil, err
		}
		if err = fl.writeEntry(genesis); err != nil {
			file.Close()
			return nil, err
		}
		fl.tail = genesis
	} else {
		fl.tail = entries[len(entries)-1]
	}

	return fl, nil
}

// Append implements Ledger.
func (fl *FileLedger) Append(action string, data map[string]interface{}) (*Entry, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	entry, err := nextEntry(uuid.NewString(), fl.tail, action, data)
	if err != nil {
		return nil, err
	}
	if err = fl.writeEntry(entry); err != nil {
		return nil, err
	}

	fl.tail = entry
	return &entry, nil
}

// Entries implements Ledger.
func (fl *FileLedger) Entries() ([]Entry, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.readEntries()
}

// Verify implements Ledger. The chain is re-read from disk so that
// out-of-band mutations of the file are detected.
func (fl *FileLedger) Verify() (bool, string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if _, err := os.Stat(fl.path); err != nil {
		return false, "chain file not found"
	}

	entries, err := fl.readEntries()
	if err != nil {
		return false, fmt.Sprintf("unreadable chain: %v", err)
	}
	return verifyEntries(entries)
}

// Close implements Ledger.
func (fl *FileLedger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}

func (fl *FileLedger) writeEntry(entry Entry) error {
	if fl.file == nil {
		var err error
		fl.file, err = os.OpenFile(fl.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to reopen ledger file: %w", err)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize ledger entry: %w", err)
	}
	if _, err = fl.file.WriteString(string(line) + "\n"); err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	if err = fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

func (fl *FileLedger) readEntries() ([]Entry, error) {
	file, err := os.Open(fl.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err = json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("malformed ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ledger file: %w", err)
	}
	return entries, nil
}
