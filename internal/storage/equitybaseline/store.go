// Package equitybaseline remembers the previous trading-day close equity for
// exchanges that do not report it.
package equitybaseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultStateDir = "./wal/baseline"
	dayLayout       = "2006-01-02"
)

func getStateDir() string {
	if stateDir := os.Getenv("RISKDESK_BASELINE_DIR"); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// State is the persisted baseline.
type State struct {
	Day       string `json:"day"`
	Current   string `json:"current"`
	PrevClose string `json:"prev_close"`
}

// Store keeps one baseline file per account scope.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a baseline store for the given scope, e.g. "binance" or a wallet address.
// An empty dir falls back to RISKDESK_BASELINE_DIR and then to the default location.
func NewStore(dir, scope string) (*Store, error) {
	if dir == "" {
		dir = getStateDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create baseline state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "default"
	}

	return &Store{path: filepath.Join(dir, fmt.Sprintf("%s.json", name))}, nil
}

// Observe records equity seen at now and returns the last equity of the previous UTC day.
// On the first observation ever the current equity is its own baseline.
func (s *Store) Observe(now time.Time, equity decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return decimal.Zero, err
	}

	day := now.UTC().Format(dayLayout)
	next := State{Day: day, Current: equity.String()}

	switch {
	case state == nil:
		next.PrevClose = equity.String()
	case state.Day == day:
		next.PrevClose = state.PrevClose
	case state.Day < day:
		next.PrevClose = state.Current
	default:
		// clock went backwards; keep the stored baseline
		return decimal.NewFromString(state.PrevClose)
	}

	if err := s.save(next); err != nil {
		return decimal.Zero, err
	}

	prev, err := decimal.NewFromString(next.PrevClose)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "decode baseline equity")
	}
	return prev, nil
}

func (s *Store) load() (*State, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read baseline state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode baseline state")
	}

	return &state, nil
}

// save writes state to disk atomically via temp file.
func (s *Store) save(state State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode baseline state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write baseline temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist baseline state")
	}

	return nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
