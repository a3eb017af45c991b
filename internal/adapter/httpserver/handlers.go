package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/rehearsal-coach/internal/config"
	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
	"github.com/fairyhunter13/rehearsal-coach/internal/usecase"
)

// maxBodyBytes caps JSON bodies well above any legitimate rehearsal turn.
const maxBodyBytes = 1 << 20

// Server aggregates handler dependencies.
type Server struct {
	Cfg          config.Config
	Coach        usecase.CoachService
	StorageCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with handlers and checks wired.
func NewServer(cfg config.Config, coach usecase.CoachService, storageCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Coach: coach, StorageCheck: storageCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func clientID(r *http.Request) string {
	return domain.NormalizeClientID(r.Header.Get("X-Client-Id"))
}

type chatBody struct {
	Setup   domain.ChatSetup   `json:"setup"`
	Message string             `json:"message" validate:"max=8000"`
	ChatLog []domain.ChatEntry `json:"chatLog" validate:"max=200"`
}

type reportBody struct {
	Setup           domain.ChatSetup   `json:"setup"`
	ChatLog         []domain.ChatEntry `json:"chatLog" validate:"max=200"`
	LastUserMessage string             `json:"lastUserMessage" validate:"max=8000"`
}

// ChatHandler runs one quota-gated chat turn.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body chatBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			resp, status := s.Coach.InvalidBody("요청 형식이 올바르지 않습니다.")
			writeJSON(w, status, resp)
			return
		}
		if err := getValidator().Struct(body); err != nil {
			resp, status := s.Coach.InvalidBody("요청 형식이 올바르지 않습니다.")
			writeJSON(w, status, resp)
			return
		}
		resp, status := s.Coach.Chat(r.Context(), clientID(r), usecase.ChatRequest{
			Setup:   body.Setup,
			Message: body.Message,
			ChatLog: body.ChatLog,
		})
		writeJSON(w, status, resp)
	}
}

// ReportHandler builds a rehearsal report; it reads quota but never spends it.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body reportBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			resp, status := s.Coach.InvalidBody("요청 형식이 올바르지 않아 리포트를 생성할 수 없습니다.")
			writeJSON(w, status, resp)
			return
		}
		if err := getValidator().Struct(body); err != nil {
			resp, status := s.Coach.InvalidBody("요청 형식이 올바르지 않아 리포트를 생성할 수 없습니다.")
			writeJSON(w, status, resp)
			return
		}
		resp, status := s.Coach.Report(r.Context(), clientID(r), usecase.ReportRequest{
			Setup:           body.Setup,
			ChatLog:         body.ChatLog,
			LastUserMessage: body.LastUserMessage,
		})
		writeJSON(w, status, resp)
	}
}

type healthCheck struct {
	OK    bool   `json:"ok"`
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
	Flag  string `json:"flag,omitempty"`
}

// healthAuthorized gates the health endpoint on the shared token; no token
// configured means the endpoint is open.
func (s *Server) healthAuthorized(r *http.Request) bool {
	token := s.Cfg.HealthcheckToken
	if token == "" {
		return true
	}
	provided := r.Header.Get("X-Health-Token")
	if provided == "" {
		provided = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}

// HealthHandler probes storage and the upstream provider with a minimal
// call, answering 200 only when both pass.
func (s *Server) HealthHandler(model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.healthAuthorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		db := healthCheck{}
		switch {
		case s.StorageCheck == nil:
			db.Error = "missing_db_binding"
		default:
			if err := s.StorageCheck(ctx); err != nil {
				db.Error = err.Error()
			} else {
				db.OK = true
			}
		}

		upstream := healthCheck{Model: model}
		_, err := s.Coach.AI.Ask(ctx,
			"health check: return JSON object only with keys ok(boolean), provider(string).",
			map[string]any{"ping": true, "ts": time.Now().UnixMilli()},
		)
		if err != nil {
			classified := domain.ClassifyUpstreamError(err.Error())
			upstream.Error = classified.Message
			upstream.Flag = classified.Flag
		} else {
			upstream.OK = true
		}

		ok := db.OK && upstream.OK
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"ok":        ok,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    map[string]healthCheck{"db": db, "openai": upstream},
		})
	}
}
