package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/finappkc/otpgate"
)

// statusSource is the slice of [otpgate.Gate] the handler reads from.
type statusSource interface {
	MetricsSnapshot() otpgate.MetricsSnapshot
	ActiveRecords() int
	AuditDropped() uint64
	ConfigIssues() []string
}

// Config controls the status surface. Secret signs the HS256 bearer
// tokens required by /stats and /metrics; Audience, when set, must
// appear in the token's aud claim.
type Config struct {
	Realm    string
	Secret   []byte
	Audience string
}

// Handler serves the gate status endpoints.
type Handler struct {
	source statusSource
	cfg    Config
}

// NewHandler creates a status handler reading from gate.
func NewHandler(gate *otpgate.Gate, cfg Config) *Handler {
	return &Handler{source: gate, cfg: cfg}
}

// NewHandlerFromSource creates a status handler from a custom source.
func NewHandlerFromSource(source statusSource, cfg Config) *Handler {
	return &Handler{source: source, cfg: cfg}
}

// Routes returns the chi router for mounting:
//
//	GET /otpgate/health   liveness, open
//	GET /otpgate/stats    counters + live record count, bearer-guarded
//	GET /otpgate/metrics  text exposition, bearer-guarded
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/otpgate/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.requireBearer)
		r.Get("/otpgate/stats", h.stats)
		r.Get("/otpgate/metrics", h.metrics)
	})
	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	Realm     string `json:"realm,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type statsResponse struct {
	Realm         string            `json:"realm,omitempty"`
	Timestamp     int64             `json:"timestamp"`
	ActiveRecords int               `json:"active_records"`
	AuditDropped  uint64            `json:"audit_dropped"`
	ConfigIssues  []string          `json:"config_issues,omitempty"`
	Counters      map[string]uint64 `json:"counters"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "UP",
		Realm:     h.cfg.Realm,
		Timestamp: time.Now().Unix(),
	})
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "gate not ready"})
		return
	}

	snapshot := h.source.MetricsSnapshot()
	counters := make(map[string]uint64, len(snapshot.Counters))
	for _, id := range otpgate.MetricIDs() {
		counters[otpgate.MetricName(id)] = snapshot.Counters[id]
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Realm:         h.cfg.Realm,
		Timestamp:     time.Now().Unix(),
		ActiveRecords: h.source.ActiveRecords(),
		AuditDropped:  h.source.AuditDropped(),
		ConfigIssues:  h.source.ConfigIssues(),
		Counters:      counters,
	})
}

func (h *Handler) metrics(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snapshot := h.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(2048)
	for _, id := range otpgate.MetricIDs() {
		name := otpgate.MetricName(id)
		b.WriteString("# TYPE " + name + " counter\n")
		b.WriteString(name + " " + strconv.FormatUint(snapshot.Counters[id], 10) + "\n")
	}
	b.WriteString("# TYPE otpgate_active_records gauge\n")
	b.WriteString("otpgate_active_records " + strconv.Itoa(h.source.ActiveRecords()) + "\n")
	b.WriteString("# TYPE otpgate_audit_dropped_total counter\n")
	b.WriteString("otpgate_audit_dropped_total " + strconv.FormatUint(h.source.AuditDropped(), 10) + "\n")

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (h *Handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.cfg.Secret) == 0 {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "status secret not configured"})
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "bearer token required"})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return h.cfg.Secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		if h.cfg.Audience != "" {
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !hasAudience(claims, h.cfg.Audience) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "audience not permitted"})
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func hasAudience(claims jwt.MapClaims, want string) bool {
	auds, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, aud := range auds {
		if aud == want {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
