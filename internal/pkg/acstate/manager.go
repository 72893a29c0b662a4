package acstate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

/*
 *  Latest known status per AC system.  Each entry keeps the raw status
 *  document: deltas are applied to a decoded copy which is re-encoded and
 *  validated before it replaces the entry, so a reader only ever sees a
 *  complete document.
 */

// ErrSequenceGap is returned by ApplyEvent when events were missed; the
// caller must fetch the full status again
var ErrSequenceGap = errors.New("event sequence gap")

type SyncState int

const (
	Unknown SyncState = iota
	Synced
	Stale
)

var syncStateNames = []string{"unknown", "synced", "stale"}

func (s SyncState) String() string {
	if int(s) < 0 || int(s) >= len(syncStateNames) {
		return fmt.Sprintf("unknown (id: %d)", s)
	}
	return syncStateNames[s]
}

type entry struct {
	raw         []byte
	seq         int64
	lastEventID string
	zoneCount   int
	limits      *models.UserSetpointLimits
	stale       bool
}

type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Manager {
	return &Manager{
		entries: make(map[string]*entry),
	}
}

// parse decodes, validates and derives a status document
func parse(raw []byte) (*models.Status, error) {
	st := &models.Status{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, errors.Wrap(err, "decoding status")
	}
	if err := st.Validate(models.Formats); err != nil {
		return nil, err
	}
	st.Derive()
	return st, nil
}

func newEntry(raw []byte, st *models.Status, lastEventID string) *entry {
	e := &entry{
		raw:         raw,
		seq:         st.Sequence,
		lastEventID: lastEventID,
		zoneCount:   len(st.Zones()),
	}
	if l := st.Limits(); l != nil {
		lc := *l
		e.limits = &lc
	}
	return e
}

// Replace stores a full status snapshot for serial
func (m *Manager) Replace(serial string, raw []byte) (*models.Status, error) {
	serial = models.NormaliseSerial(serial)
	st, err := parse(raw)
	if err != nil {
		return nil, &apierrors.ValidationError{Op: "replace status " + serial, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lastEventID := ""
	if old, ok := m.entries[serial]; ok {
		lastEventID = old.lastEventID
	}
	m.entries[serial] = newEntry(copyBytes(raw), st, lastEventID)

	st.Serial = serial
	return st, nil
}

// ReplaceAll stores a snapshot for every serial given and forgets serials
// that are not.  Nothing changes if any snapshot is invalid.
func (m *Manager) ReplaceAll(snapshots map[string][]byte) error {
	parsed := make(map[string]*models.Status, len(snapshots))
	raws := make(map[string][]byte, len(snapshots))
	for serial, raw := range snapshots {
		serial = models.NormaliseSerial(serial)
		st, err := parse(raw)
		if err != nil {
			return &apierrors.ValidationError{Op: "replace status " + serial, Err: err}
		}
		parsed[serial] = st
		raws[serial] = copyBytes(raw)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make(map[string]*entry, len(parsed))
	for serial, st := range parsed {
		lastEventID := ""
		if old, ok := m.entries[serial]; ok {
			lastEventID = old.lastEventID
		}
		entries[serial] = newEntry(raws[serial], st, lastEventID)
	}

	for serial := range m.entries {
		if _, ok := entries[serial]; !ok {
			logging.Logger(nil).Debugf("Forgetting state of system %s", serial)
		}
	}
	m.entries = entries

	return nil
}

// Forget drops the state of serial
func (m *Manager) Forget(serial string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, models.NormaliseSerial(serial))
}

// ApplyEvent applies one feed event to serial's state.
//
// A status-change event must carry the immediate successor of the current
// sequence; an older one is discarded (applied is false, err is nil) and a
// newer one marks the serial stale and returns ErrSequenceGap.  A
// full-status event replaces the state whenever it is newer.  A snapshot
// without a sequence accepts the next event as its baseline.
func (m *Manager) ApplyEvent(serial string, ev *models.Event) (applied bool, err error) {
	serial = models.NormaliseSerial(serial)
	op := "apply event to " + serial
	ctxLogger := logging.Logger(nil).WithField("serial", serial)

	if ev == nil {
		return false, apierrors.NewValidationError(op, "nil event")
	}
	if err := ev.Validate(models.Formats); err != nil {
		return false, &apierrors.ValidationError{Op: op, Err: err}
	}
	seq := ev.Seq()

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, known := m.entries[serial]

	switch ev.EventType() {
	case models.EventTypeFullStatus:
		if known && cur.seq != 0 && seq <= cur.seq {
			ctxLogger.Warnf("Discarding stale full status event %s (sequence %d <= %d)", ev.EventID(), seq, cur.seq)
			return false, nil
		}

		doc := map[string]interface{}{}
		if known {
			if err := json.Unmarshal(cur.raw, &doc); err != nil {
				return false, &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "decoding stored status")}
			}
		}
		doc["lastKnownState"] = ev.Data
		doc["sequence"] = seq

		return m.store(op, serial, doc, ev, false)

	case models.EventTypeStatusChange:
		if !known {
			ctxLogger.Warnf("Status change event %s for system without a snapshot", ev.EventID())
			return false, errors.Wrapf(ErrSequenceGap, "system %s has no snapshot", serial)
		}

		if cur.seq != 0 {
			if seq <= cur.seq {
				ctxLogger.Warnf("Discarding out of order event %s (sequence %d <= %d)", ev.EventID(), seq, cur.seq)
				return false, nil
			}
			if seq != cur.seq+1 {
				ctxLogger.Warnf("Event sequence gap: have %d, got %d, system needs a resync", cur.seq, seq)
				stale := *cur
				stale.stale = true
				m.entries[serial] = &stale
				return false, errors.Wrapf(ErrSequenceGap, "system %s: have %d, got %d", serial, cur.seq, seq)
			}
		}

		doc := map[string]interface{}{}
		if err := json.Unmarshal(cur.raw, &doc); err != nil {
			return false, &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "decoding stored status")}
		}
		lks, ok := doc["lastKnownState"].(map[string]interface{})
		if !ok {
			return false, apierrors.NewValidationError(op, "stored status has no lastKnownState")
		}

		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			// metadata such as @metadata is not part of the state tree
			if strings.HasPrefix(k, "@") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if err := setPath(lks, k, ev.Data[k]); err != nil {
				return false, &apierrors.ValidationError{Op: op, Err: err}
			}
		}
		doc["sequence"] = seq

		// a successor does not repair an earlier gap
		return m.store(op, serial, doc, ev, cur.stale)

	default:
		ctxLogger.Debugf("Ignoring event %s of type %s", ev.EventID(), ev.EventType())
		return false, nil
	}
}

// store validates doc and swaps it in; called with the lock held
func (m *Manager) store(op, serial string, doc map[string]interface{}, ev *models.Event, stale bool) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "encoding status")}
	}

	st, err := parse(raw)
	if err != nil {
		return false, &apierrors.ValidationError{Op: op, Err: err}
	}

	e := newEntry(raw, st, ev.EventID())
	e.stale = stale
	m.entries[serial] = e
	return true, nil
}

// Get returns a private copy of serial's status
func (m *Manager) Get(serial string) (*models.Status, bool) {
	serial = models.NormaliseSerial(serial)

	m.mu.RLock()
	e, ok := m.entries[serial]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	// entries are never modified once stored
	st, err := parse(e.raw)
	if err != nil {
		return nil, false
	}
	st.Serial = serial
	return st, true
}

// Raw returns a copy of serial's status document
func (m *Manager) Raw(serial string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[models.NormaliseSerial(serial)]
	if !ok {
		return nil, false
	}
	return copyBytes(e.raw), true
}

func (m *Manager) ZoneCount(serial string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[models.NormaliseSerial(serial)]
	if !ok {
		return 0, false
	}
	return e.zoneCount, true
}

// Limits returns the setpoint limits the system reports, if it does
func (m *Manager) Limits(serial string) (*models.UserSetpointLimits, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[models.NormaliseSerial(serial)]
	if !ok || e.limits == nil {
		return nil, false
	}
	l := *e.limits
	return &l, true
}

func (m *Manager) Sequence(serial string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[models.NormaliseSerial(serial)]
	if !ok {
		return 0, false
	}
	return e.seq, true
}

// LastEventID is the feed cursor for serial: the ID of the last applied event
func (m *Manager) LastEventID(serial string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[models.NormaliseSerial(serial)]; ok {
		return e.lastEventID
	}
	return ""
}

// SetLastEventID moves the feed cursor of a known serial past events that
// were read but not applied
func (m *Manager) SetLastEventID(serial, id string) bool {
	serial = models.NormaliseSerial(serial)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[serial]
	if !ok || id == "" {
		return false
	}
	ne := *e
	ne.lastEventID = id
	m.entries[serial] = &ne
	return true
}

func (m *Manager) State(serial string) SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[models.NormaliseSerial(serial)]
	switch {
	case !ok:
		return Unknown
	case e.stale:
		return Stale
	default:
		return Synced
	}
}

// Serials lists the systems with known state
func (m *Manager) Serials() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for s := range m.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
