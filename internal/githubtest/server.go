// Package githubtest runs an in-process stand-in for the parts of GitHub that
// cairos talks to: the OAuth token endpoint, the device code endpoint and the
// /user REST resources.
package githubtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Email is one entry of GET /user/emails.
type Email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// User is the account behind an access token.
type User struct {
	Login  string
	Email  string
	Emails []Email
}

// Poll outcomes scripted for the device flow token endpoint.
const (
	PollPending  = "authorization_pending"
	PollSlowDown = "slow_down"
	PollExpired  = "expired_token"
	PollDenied   = "access_denied"
)

// Device configures the answer to POST /login/device/code.
type Device struct {
	DeviceCode string
	UserCode   string
	ExpiresIn  int
	Interval   int
	// Polls is consumed in order. An entry that is not one of the Poll*
	// error codes is returned as the access token.
	Polls []string
}

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	codes     map[string]string
	users     map[string]User
	verifiers []string
	device    *Device
	polls     int
	userFault *fault
}

type fault struct {
	status int
	body   string
}

func NewServer() *Server {
	s := &Server{
		codes: make(map[string]string),
		users: make(map[string]User),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", s.handleToken)
	mux.HandleFunc("/login/device/code", s.handleDeviceCode)
	mux.HandleFunc("/api/user", s.handleUser)
	mux.HandleFunc("/api/user/emails", s.handleEmails)
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) AuthURL() string       { return s.URL + "/login/oauth/authorize" }
func (s *Server) TokenURL() string      { return s.URL + "/login/oauth/access_token" }
func (s *Server) DeviceAuthURL() string { return s.URL + "/login/device/code" }
func (s *Server) APIURL() string        { return s.URL + "/api" }

// AddUser makes accessToken resolve to u.
func (s *Server) AddUser(accessToken string, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[accessToken] = u
}

// IssueCode makes code exchangeable for accessToken.
func (s *Server) IssueCode(code, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = accessToken
}

// SetDevice scripts the device flow.
func (s *Server) SetDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = &d
	s.polls = 0
}

// Polls returns how many device token polls were served.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Verifiers returns the code_verifier values received on code exchange.
func (s *Server) Verifiers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.verifiers...)
}

// FailUser makes GET /user answer with status and a raw body.
func (s *Server) FailUser(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userFault = &fault{status: status, body: body}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.Form.Get("grant_type") == "urn:ietf:params:oauth:grant-type:device_code" {
		s.handleDevicePoll(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	accessToken, ok := s.codes[r.Form.Get("code")]
	if !ok {
		// GitHub reports a bad code with 200 and an error body.
		writeJSON(w, http.StatusOK, map[string]string{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
		return
	}
	s.verifiers = append(s.verifiers, r.Form.Get("code_verifier"))
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": accessToken,
		"token_type":   "bearer",
		"scope":        "read:user,user:email",
	})
}

func (s *Server) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": "device_flow_disabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      s.device.DeviceCode,
		"user_code":        s.device.UserCode,
		"verification_uri": s.URL + "/login/device",
		"expires_in":       s.device.ExpiresIn,
		"interval":         s.device.Interval,
	})
}

func (s *Server) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || r.Form.Get("device_code") != s.device.DeviceCode {
		writeJSON(w, http.StatusOK, map[string]string{"error": "incorrect_device_code"})
		return
	}
	next := PollPending
	if s.polls < len(s.device.Polls) {
		next = s.device.Polls[s.polls]
	}
	s.polls++

	switch next {
	case PollPending, PollExpired, PollDenied:
		writeJSON(w, http.StatusOK, map[string]string{"error": next})
	case PollSlowDown:
		writeJSON(w, http.StatusOK, map[string]any{"error": next, "interval": s.device.Interval + 5})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"access_token": next, "token_type": "bearer"})
	}
}

func (s *Server) lookup(r *http.Request) (User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[token]
	return u, ok
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f := s.userFault
	s.mu.Unlock()
	if f != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}

	u, ok := s.lookup(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	body := map[string]any{"login": u.Login, "email": nil}
	if u.Email != "" {
		body["email"] = u.Email
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	u, ok := s.lookup(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	emails := u.Emails
	if emails == nil {
		emails = []Email{}
	}
	writeJSON(w, http.StatusOK, emails)
}
