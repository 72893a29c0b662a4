package simulator

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// issue a bearer; called with the lock held
func (s *Server) issueBearer() tokenResponse {
	tok := newID()
	s.bearers[tok] = s.opts.Clock().Add(s.opts.BearerLifetime)

	return tokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.opts.BearerLifetime / time.Second),
	}
}

func (s *Server) checkCredentials(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	if s.opts.Username == "" {
		return true
	}
	return username == s.opts.Username && password == s.opts.Password
}

func (s *Server) handleUserDevices(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(rw, r, http.StatusBadRequest, "malformed form")
		return
	}
	f := r.PostForm

	if !s.checkCredentials(f.Get("username"), f.Get("password")) {
		writeError(rw, r, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if f.Get("deviceName") == "" || f.Get("deviceUniqueIdentifier") == "" {
		writeError(rw, r, http.StatusBadRequest, "deviceName and deviceUniqueIdentifier are required")
		return
	}

	tok := newID()
	s.mu.Lock()
	s.pairing[tok] = true
	s.mu.Unlock()

	logging.Logger(r.Context()).Debugf("Paired device %s (%s)", f.Get("deviceName"), f.Get("client"))
	writeJSON(rw, r, http.StatusOK, map[string]string{"pairingToken": tok})
}

func (s *Server) handleToken(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenError(rw, r, http.StatusBadRequest, "invalid_request", "malformed form")
		return
	}

	switch gt := r.PostForm.Get("grant_type"); gt {
	case "refresh_token":
		s.refreshGrant(rw, r)
	case deviceCodeGrantType:
		s.deviceCodeGrant(rw, r)
	case "":
		// device authorization requests share the token endpoint
		if r.PostForm.Get("client_id") == "" {
			writeTokenError(rw, r, http.StatusBadRequest, "invalid_request", "grant_type is required")
			return
		}
		s.deviceAuthorization(rw, r)
	default:
		writeTokenError(rw, r, http.StatusBadRequest, "unsupported_grant_type", gt)
	}
}

func (s *Server) refreshGrant(rw http.ResponseWriter, r *http.Request) {
	rt := r.PostForm.Get("refresh_token")

	s.mu.Lock()
	isPairing, isRefresh := s.pairing[rt], s.refresh[rt]
	if rt == "" || (!isPairing && !isRefresh) {
		s.mu.Unlock()
		writeTokenError(rw, r, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
		return
	}
	resp := s.issueBearer()
	s.mu.Unlock()

	// a pairing token is echoed back as the refresh token
	if isPairing {
		resp.RefreshToken = rt
	}

	rw.Header().Set("Cache-Control", "no-store")
	writeJSON(rw, r, http.StatusOK, resp)
}

func (s *Server) deviceAuthorization(rw http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	verify := fmt.Sprintf("%s://%s%s", scheme, r.Host, VerifyPath)

	g := &deviceGrant{
		userCode: newUserCode(),
		expires:  s.opts.Clock().Add(s.opts.DeviceCodeLifetime),
		approved: s.opts.AutoApprove,
	}
	dc := newID()

	s.mu.Lock()
	s.devices[dc] = g
	s.mu.Unlock()

	logging.Logger(r.Context()).Infof("Device code issued, user code %s", g.userCode)
	writeJSON(rw, r, http.StatusOK, deviceAuthResponse{
		DeviceCode:              dc,
		UserCode:                g.userCode,
		VerificationURI:         verify,
		VerificationURIComplete: verify + "?user_code=" + g.userCode,
		ExpiresIn:               int64(s.opts.DeviceCodeLifetime / time.Second),
		Interval:                s.opts.PollInterval,
	})
}

func (s *Server) deviceCodeGrant(rw http.ResponseWriter, r *http.Request) {
	dc := r.PostForm.Get("device_code")

	s.mu.Lock()
	g, ok := s.devices[dc]
	if !ok {
		s.mu.Unlock()
		writeTokenError(rw, r, http.StatusBadRequest, "invalid_grant", "unknown device code")
		return
	}

	code, description := "", ""
	switch {
	case !s.opts.Clock().Before(g.expires):
		delete(s.devices, dc)
		code, description = "expired_token", "the device code has expired"
	case g.denied:
		delete(s.devices, dc)
		code, description = "access_denied", "the user denied the request"
	case g.slowDown:
		g.slowDown = false
		code = "slow_down"
	case !g.approved:
		code = "authorization_pending"
	}

	if code != "" {
		s.mu.Unlock()
		writeTokenError(rw, r, http.StatusBadRequest, code, description)
		return
	}

	delete(s.devices, dc)
	resp := s.issueBearer()
	resp.RefreshToken = newID()
	s.refresh[resp.RefreshToken] = true
	s.mu.Unlock()

	rw.Header().Set("Cache-Control", "no-store")
	writeJSON(rw, r, http.StatusOK, resp)
}

// the verification page approves the code it is given
func (s *Server) handleVerify(rw http.ResponseWriter, r *http.Request) {
	uc := r.URL.Query().Get("user_code")
	if uc == "" {
		http.Error(rw, "user_code is required", http.StatusBadRequest)
		return
	}
	if !s.Approve(uc) {
		http.Error(rw, "unknown user code", http.StatusNotFound)
		return
	}

	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(rw, "Device %s approved, you may close this page\n", uc)
}

func (s *Server) withGrant(userCode string, fn func(g *deviceGrant)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.devices {
		if strings.EqualFold(g.userCode, userCode) {
			fn(g)
			return true
		}
	}
	return false
}

// Approve grants the pending device code with this user code
func (s *Server) Approve(userCode string) bool {
	return s.withGrant(userCode, func(g *deviceGrant) { g.approved = true })
}

// Deny refuses the pending device code with this user code
func (s *Server) Deny(userCode string) bool {
	return s.withGrant(userCode, func(g *deviceGrant) { g.denied = true })
}

// Expire ends the lifetime of the device code with this user code
func (s *Server) Expire(userCode string) bool {
	return s.withGrant(userCode, func(g *deviceGrant) { g.expires = time.Time{} })
}

// SlowDown makes the next poll of this user code answer slow_down
func (s *Server) SlowDown(userCode string) bool {
	return s.withGrant(userCode, func(g *deviceGrant) { g.slowDown = true })
}
