// Package store persists the list of saved cameras.
//
// The list is a single named record ("savedCameras") holding a JSON array of
// {name, address} objects. Every mutation re-reads the record and writes the
// full list back before returning, so another process sharing the backend
// sees the change on its next Load.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
)

// RecordKey names the persisted device list
const RecordKey = "savedCameras"

// ErrCorruptRecord is returned when the persisted list is not a JSON array of devices
var ErrCorruptRecord = errors.New("saved camera list is corrupt")

// storeMutex serialises read-modify-write cycles across every DeviceStore in the process
var storeMutex sync.Mutex

// DeviceStore is the deduplicated set of saved cameras, keyed by address
type DeviceStore struct {
	kv  KV
	key string
}

// NewDeviceStore creates a store over kv
func NewDeviceStore(kv KV) *DeviceStore {
	return &DeviceStore{kv: kv, key: RecordKey}
}

// Load returns the saved cameras in insertion order
func (s *DeviceStore) Load() ([]discovery.Device, error) {
	storeMutex.Lock()
	defer storeMutex.Unlock()
	return s.load()
}

func (s *DeviceStore) load() ([]discovery.Device, error) {
	data, ok, err := s.kv.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved cameras: %w", err)
	}
	if !ok || len(data) == 0 {
		return []discovery.Device{}, nil
	}

	var devices []discovery.Device
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	// A hand-edited record may repeat an address; the first entry wins
	seen := make(map[string]bool, len(devices))
	out := make([]discovery.Device, 0, len(devices))
	for _, d := range devices {
		if d.Address == "" || seen[d.Address] {
			continue
		}
		seen[d.Address] = true
		out = append(out, d)
	}
	return out, nil
}

func (s *DeviceStore) persist(devices []discovery.Device) error {
	if devices == nil {
		devices = []discovery.Device{}
	}
	data, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("failed to encode saved cameras: %w", err)
	}
	if err := s.kv.Put(s.key, data); err != nil {
		return fmt.Errorf("failed to save cameras: %w", err)
	}
	return nil
}

// Add saves device unless its address is already present. The first name
// registered for an address is kept.
func (s *DeviceStore) Add(device discovery.Device) error {
	if device.Address == "" {
		return discovery.ErrEmptyAddress
	}

	storeMutex.Lock()
	defer storeMutex.Unlock()

	devices, err := s.load()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.Address == device.Address {
			logging.Debug("Camera already saved", zap.String("address", device.Address))
			return nil
		}
	}

	if err := s.persist(append(devices, device)); err != nil {
		return err
	}
	logging.Info("Camera saved", zap.String("address", device.Address), zap.String("name", device.Name))
	return nil
}

// Remove deletes every entry with address. Removing an unknown address is a no-op.
func (s *DeviceStore) Remove(address string) error {
	storeMutex.Lock()
	defer storeMutex.Unlock()

	devices, err := s.load()
	if err != nil {
		return err
	}

	kept := devices[:0]
	for _, d := range devices {
		if d.Address != address {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(devices) {
		return nil
	}

	if err := s.persist(kept); err != nil {
		return err
	}
	logging.Info("Camera removed", zap.String("address", address))
	return nil
}

// Save replaces the whole list. Duplicate addresses are dropped, first wins.
func (s *DeviceStore) Save(devices []discovery.Device) error {
	storeMutex.Lock()
	defer storeMutex.Unlock()

	seen := make(map[string]bool, len(devices))
	out := make([]discovery.Device, 0, len(devices))
	for _, d := range devices {
		if d.Address == "" || seen[d.Address] {
			continue
		}
		seen[d.Address] = true
		out = append(out, d)
	}
	return s.persist(out)
}
