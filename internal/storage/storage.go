// Package storage persists bot state across restarts: the recorded order
// trail and the daily P/L series. Positions are not stored; the broker is
// the source of truth and the ledger resyncs them on startup.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/models"
)

type Store struct {
	mu   sync.RWMutex
	path string
	data *stateData
}

type stateData struct {
	Orders      []models.Order     `json:"orders"`
	DailyPnL    map[string]float64 `json:"daily_pnl"`
	LastUpdated time.Time          `json:"last_updated"`
}

// NewStore opens the state file at path, loading existing data if present.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: &stateData{
			DailyPnL: make(map[string]float64),
		},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading state file %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, s.data); err != nil {
		return err
	}
	if s.data.DailyPnL == nil {
		s.data.DailyPnL = make(map[string]float64)
	}
	return nil
}

// save writes to a temp file then renames so a crash never truncates state.
func (s *Store) save() error {
	s.data.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Orders returns the persisted order trail.
func (s *Store) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.data.Orders))
	copy(out, s.data.Orders)
	return out
}

// SaveOrders replaces the persisted order trail.
func (s *Store) SaveOrders(orders []models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Orders = make([]models.Order, len(orders))
	copy(s.data.Orders, orders)
	return s.save()
}

// RecordDailyPnL sets the mark-to-market P/L for a trading day.
func (s *Store) RecordDailyPnL(date string, pnl float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DailyPnL[date] = pnl
	return s.save()
}

// DailyPnL returns the recorded P/L for a day, zero if absent.
func (s *Store) DailyPnL(date string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.DailyPnL[date]
}

// PnLHistory returns a copy of the full daily P/L series.
func (s *Store) PnLHistory() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.data.DailyPnL))
	for date, pnl := range s.data.DailyPnL {
		out[date] = pnl
	}
	return out
}

// LastUpdated reports when the state file was last written.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.LastUpdated
}
