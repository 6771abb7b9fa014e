package climate

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// ChannelMapper resolves a multilateral organisation name to its
// institutional channel code. External collaborator consumed as a black box;
// the fuzzy/regex name handling lives behind it.
type ChannelMapper interface {
	Code(name string) (string, error)
}

// DBChannelMapper serves lookups from the channel_mapping table, cached
// after first use.
type DBChannelMapper struct {
	db *sql.DB

	mu    sync.Mutex
	cache map[string]string
}

func NewDBChannelMapper(db *sql.DB) *DBChannelMapper {
	return &DBChannelMapper{db: db, cache: make(map[string]string)}
}

func (m *DBChannelMapper) Code(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", fmt.Errorf("channel mapper: empty name")
	}

	m.mu.Lock()
	code, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return code, nil
	}

	err := m.db.QueryRow(
		`SELECT channel_code FROM climate_channel_mapping WHERE lower(channel_name) = $1`,
		key,
	).Scan(&code)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("channel mapper: no code for %q", name)
	}
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cache[key] = code
	m.mu.Unlock()
	return code, nil
}

// StaticChannelMapper maps from a fixed table, for tests and offline runs.
type StaticChannelMapper map[string]string

func (m StaticChannelMapper) Code(name string) (string, error) {
	code, ok := m[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("channel mapper: no code for %q", name)
	}
	return code, nil
}
