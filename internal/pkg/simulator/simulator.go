// Package simulator is an in-process fake of the Nimbus cloud: pairing,
// OAuth2 token and device flows, the system list, status and event feed,
// and the command endpoint.  State is kept with the same acstate manager
// the client uses, so commands become status-change events on the feed.
package simulator

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jake-scott/actron-nimbus/internal/pkg/acstate"
	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/internal/pkg/nimbusapi"
	"github.com/jake-scott/actron-nimbus/pkg/commands"
	"github.com/jake-scott/actron-nimbus/pkg/middlewares"
	"github.com/jake-scott/actron-nimbus/pkg/models"
)

// Endpoint paths
const (
	UserDevicesPath  = "/api/v0/client/user-devices"
	TokenPath        = "/api/v0/oauth/token"
	SystemsPath      = nimbusapi.SystemsPath
	StatusPath       = nimbusapi.StatusPath
	EventsLatestPath = nimbusapi.EventsLatestPath
	EventsNewerPath  = nimbusapi.EventsNewerPath
	CommandPath      = nimbusapi.CommandPath
	AccountPath      = nimbusapi.AccountPath
	VerifyPath       = "/device"
)

const (
	apiPrefix           = "/api/v0/client"
	deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	correlationHeader   = "X-Correlation-Id"
)

var errUnknownSystem = errors.New("unknown system")

type Options struct {
	// account credentials accepted for pairing; any non-empty pair when
	// Username is empty
	Username string
	Password string

	BearerLifetime     time.Duration
	DeviceCodeLifetime time.Duration
	PollInterval       int64

	// device codes are approved as soon as they are issued
	AutoApprove bool

	EventPageSize  int
	EventRetention int

	LogRequests bool
	Clock       func() time.Time
}

func (o *Options) setDefaults() {
	if o.BearerLifetime <= 0 {
		o.BearerLifetime = time.Hour
	}
	if o.DeviceCodeLifetime <= 0 {
		o.DeviceCodeLifetime = 10 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5
	}
	if o.EventPageSize <= 0 {
		o.EventPageSize = 10
	}
	if o.EventRetention < o.EventPageSize {
		o.EventRetention = 100
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Received is a command accepted by the command endpoint
type Received struct {
	Serial  string
	Command *commands.Command
}

type system struct {
	serial      string
	description string
	hwType      string

	// oldest first
	events []*models.Event
}

type deviceGrant struct {
	userCode string
	expires  time.Time
	approved bool
	denied   bool
	slowDown bool
}

type Server struct {
	opts  Options
	state *acstate.Manager

	mu        sync.Mutex
	systems   map[string]*system
	pairing   map[string]bool
	refresh   map[string]bool
	bearers   map[string]time.Time
	devices   map[string]*deviceGrant
	calls     map[string]int
	received  []Received
	accountID string

	handler http.Handler
}

func New(opts Options) *Server {
	opts.setDefaults()

	s := &Server{
		opts:      opts,
		state:     acstate.New(),
		systems:   make(map[string]*system),
		pairing:   make(map[string]bool),
		refresh:   make(map[string]bool),
		bearers:   make(map[string]time.Time),
		devices:   make(map[string]*deviceGrant),
		calls:     make(map[string]int),
		accountID: newID(),
	}

	r := mux.NewRouter()
	r.Use(middlewares.NewCorsMw(middlewares.APICorsOptions(correlationHeader)))
	r.Use(middlewares.NewLoggingMw(opts.LogRequests))
	r.Use(middlewares.NewRecoveryMw())
	r.Use(middlewares.NewCorrelationMw(correlationHeader))
	r.Use(s.countCalls)

	r.HandleFunc(UserDevicesPath, s.handleUserDevices).Methods(http.MethodPost)
	r.HandleFunc(TokenPath, s.handleToken).Methods(http.MethodPost)
	r.HandleFunc(VerifyPath, s.handleVerify).Methods(http.MethodGet)

	api := r.PathPrefix(apiPrefix).Subrouter()
	api.Use(middlewares.NewBearerAuthMw("nimbus", s.validBearer))
	api.HandleFunc("/ac-systems", s.handleSystems).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/ac-systems/status/latest", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/ac-systems/events/latest", s.handleEventsLatest).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/ac-systems/events/newer", s.handleEventsNewer).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/ac-systems/cmds/send", s.handleCommand).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet, http.MethodOptions)

	s.handler = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()

		next.ServeHTTP(rw, r)
	})
}

// Calls is the number of requests routed to path
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// AddSystem registers a system with a generated status of zones zones
func (s *Server) AddSystem(serial, description string, zones int) error {
	if serial == "" {
		return errors.New("serial is required")
	}
	if zones < 1 || zones > 8 {
		return errors.Errorf("zones must be between 1 and 8, got %d", zones)
	}

	raw, err := newStatusDocument(serial, description, zones)
	if err != nil {
		return err
	}
	if _, err := s.state.Replace(serial, raw); err != nil {
		return errors.Wrap(err, "generated status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.systems[models.NormaliseSerial(serial)] = &system{
		serial:      serial,
		description: description,
		hwType:      "NEO",
	}

	logging.Logger(nil).Debugf("Simulating system %s (%s) with %d zones", serial, description, zones)
	return nil
}

// RemoveSystem drops a system from the account
func (s *Server) RemoveSystem(serial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.systems, models.NormaliseSerial(serial))
	s.state.Forget(serial)
}

// Status returns the simulated system's current status
func (s *Server) Status(serial string) (*models.Status, bool) {
	return s.state.Get(serial)
}

// Received lists the commands accepted so far, oldest first
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// RevokeBearers invalidates every issued bearer token; refresh and
// pairing tokens stay valid
func (s *Server) RevokeBearers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearers = make(map[string]time.Time)
}

func (s *Server) validBearer(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.bearers[token]
	return ok && s.opts.Clock().Before(exp)
}

// PushChange publishes a status-change event and applies it to the system
func (s *Server) PushChange(serial string, data map[string]interface{}) (*models.Event, error) {
	return s.publish(serial, models.EventTypeStatusChange, data, true)
}

// SkipChange applies a change without publishing its event, leaving a
// sequence gap on the feed
func (s *Server) SkipChange(serial string, data map[string]interface{}) (*models.Event, error) {
	return s.publish(serial, models.EventTypeStatusChange, data, false)
}

// Broadcast publishes the system's whole state as a full-status event
func (s *Server) Broadcast(serial string) (*models.Event, error) {
	raw, ok := s.state.Raw(serial)
	if !ok {
		return nil, errors.Wrap(errUnknownSystem, serial)
	}

	doc := struct {
		LastKnownState map[string]interface{} `json:"lastKnownState"`
	}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding state of %s", serial)
	}

	return s.publish(serial, models.EventTypeFullStatus, doc.LastKnownState, true)
}

func (s *Server) publish(serial, eventType string, data map[string]interface{}, record bool) (*models.Event, error) {
	key := models.NormaliseSerial(serial)

	s.mu.Lock()
	defer s.mu.Unlock()

	sys, ok := s.systems[key]
	if !ok {
		return nil, errors.Wrap(errUnknownSystem, serial)
	}

	seq, _ := s.state.Sequence(key)
	id := newID()
	next := seq + 1
	ev := &models.Event{
		ID:        &id,
		Type:      &eventType,
		Sequence:  &next,
		Timestamp: strfmtNow(s.opts.Clock),
		Data:      data,
	}

	if _, err := s.state.ApplyEvent(key, ev); err != nil {
		return nil, err
	}

	if record {
		sys.events = append(sys.events, ev)
		if over := len(sys.events) - s.opts.EventRetention; over > 0 {
			sys.events = append([]*models.Event(nil), sys.events[over:]...)
		}
	}
	return ev, nil
}

func (s *Server) sortedSystems() []*system {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*system, 0, len(s.systems))
	for _, sys := range s.systems {
		out = append(out, sys)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].serial < out[j].serial
	})
	return out
}
