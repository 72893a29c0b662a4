package simulator

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jake-scott/actron-nimbus/internal/pkg/nimbusapi"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/commands"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

const halContentType = "application/hal+json"

type systemEntry struct {
	Serial      string `json:"serial"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

func (s *Server) handleSystems(rw http.ResponseWriter, r *http.Request) {
	systems := s.sortedSystems()

	list := make([]systemEntry, 0, len(systems))
	for _, sys := range systems {
		list = append(list, systemEntry{Serial: sys.serial, Description: sys.description, Type: sys.hwType})
	}

	body := map[string]interface{}{
		"_links": map[string]interface{}{
			"self": map[string]string{"href": SystemsPath},
		},
		"_embedded": map[string]interface{}{
			"ac-system": list,
		},
	}
	writeJSONType(rw, r, halContentType, http.StatusOK, body)
}

// lookup the system named by the serial query parameter
func (s *Server) requestSystem(rw http.ResponseWriter, r *http.Request) (*system, string, bool) {
	serial := models.NormaliseSerial(r.URL.Query().Get("serial"))
	if serial == "" {
		writeError(rw, r, http.StatusBadRequest, "serial is required")
		return nil, "", false
	}

	s.mu.Lock()
	sys, ok := s.systems[serial]
	s.mu.Unlock()
	if !ok {
		writeError(rw, r, http.StatusNotFound, "no such system")
		return nil, "", false
	}
	return sys, serial, true
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	_, serial, ok := s.requestSystem(rw, r)
	if !ok {
		return
	}

	raw, ok := s.state.Raw(serial)
	if !ok {
		writeError(rw, r, http.StatusNotFound, "no status for system")
		return
	}
	writeRaw(rw, r, raw)
}

// newest first, at most one page
func (s *Server) page(events []*models.Event) []*models.Event {
	n := len(events)
	if n > s.opts.EventPageSize {
		events = events[n-s.opts.EventPageSize:]
		n = len(events)
	}

	out := make([]*models.Event, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, events[i])
	}
	return out
}

func (s *Server) handleEventsLatest(rw http.ResponseWriter, r *http.Request) {
	sys, _, ok := s.requestSystem(rw, r)
	if !ok {
		return
	}

	s.mu.Lock()
	out := s.page(sys.events)
	s.mu.Unlock()

	writeJSON(rw, r, http.StatusOK, models.Events{Events: out})
}

// Events after newerThanEventId.  An ID that is no longer retained gets
// the latest page, and the reader sees the gap in the sequence.
func (s *Server) handleEventsNewer(rw http.ResponseWriter, r *http.Request) {
	sys, _, ok := s.requestSystem(rw, r)
	if !ok {
		return
	}

	after := r.URL.Query().Get("newerThanEventId")
	if after == "" {
		writeError(rw, r, http.StatusBadRequest, "newerThanEventId is required")
		return
	}

	s.mu.Lock()
	idx := -1
	for i, ev := range sys.events {
		if ev.EventID() == after {
			idx = i
			break
		}
	}

	var out []*models.Event
	if idx < 0 {
		out = s.page(sys.events)
	} else {
		out = s.page(sys.events[idx+1:])
	}
	s.mu.Unlock()

	writeJSON(rw, r, http.StatusOK, models.Events{Events: out})
}

func (s *Server) handleCommand(rw http.ResponseWriter, r *http.Request) {
	_, serial, ok := s.requestSystem(rw, r)
	if !ok {
		return
	}

	if r.Header.Get("Content-Type") == "" || !nimbusapi.IsJSONContentType(r.Header) {
		writeError(rw, r, http.StatusUnsupportedMediaType, "expected a JSON body")
		return
	}

	cmd := &commands.Command{}
	if err := json.NewDecoder(r.Body).Decode(cmd); err != nil {
		writeError(rw, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := cmd.Validate(models.Formats); err != nil {
		writeError(rw, r, http.StatusBadRequest, err.Error())
		return
	}

	applied := commands.New().Merge(cmd)
	// the compressor follows the power setting
	if on, ok := cmd.Settings[commands.PathIsOn]; ok {
		applied.Set("LiveAircon.SystemOn", on)
	}

	ev, err := s.PushChange(serial, applied.Settings)
	switch {
	case err == nil:
	case apierrors.IsValidationError(err):
		writeError(rw, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, errUnknownSystem):
		writeError(rw, r, http.StatusNotFound, err.Error())
		return
	default:
		writeError(rw, r, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.received = append(s.received, Received{Serial: serial, Command: cmd})
	s.mu.Unlock()

	writeJSON(rw, r, http.StatusOK, map[string]interface{}{
		"type":    "ack",
		"eventId": ev.EventID(),
	})
}

func (s *Server) handleAccount(rw http.ResponseWriter, r *http.Request) {
	email := s.opts.Username
	if email == "" {
		email = "user@example.com"
	}

	writeJSON(rw, r, http.StatusOK, map[string]interface{}{
		"id":          s.accountID,
		"email":       email,
		"systemCount": len(s.sortedSystems()),
	})
}
