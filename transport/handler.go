package transport

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// HandlerConfig carries the transport-level knobs.
type HandlerConfig struct {
	AllowedOrigins       []string
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	SearchLimit          int
}

// Handler wires the relay's HTTP surfaces: the websocket endpoint and the
// thin collaborator endpoints around it (presence, history, search, health).
type Handler struct {
	log       *slog.Logger
	registry  contract.IRegistry
	router    *runtime.Router
	provider  contract.IIdentityProvider
	messages  repositories.IMessageLog
	directory repositories.IDirectory
	index     repositories.ISearchIndex
	stats     *observability.RelayStats
	upgrader  websocket.Upgrader
	config    HandlerConfig
}

func NewHandler(log *slog.Logger, registry contract.IRegistry, router *runtime.Router,
	provider contract.IIdentityProvider, messages repositories.IMessageLog,
	directory repositories.IDirectory, index repositories.ISearchIndex,
	stats *observability.RelayStats, config HandlerConfig) *Handler {
	return &Handler{
		log:       log,
		registry:  registry,
		router:    router,
		provider:  provider,
		messages:  messages,
		directory: directory,
		index:     index,
		stats:     stats,
		upgrader:  createUpgrader(config.AllowedOrigins),
		config:    config,
	}
}

// createUpgrader builds a websocket upgrader with the given allowed origins.
// Requests without an Origin header (non-browser clients) are accepted.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return allowed[origin]
		},
	}
}

// SetupRouter configures and returns the HTTP router.
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/chat/ws", h.HandleWebSocket).Methods("GET")
	r.HandleFunc("/chat/all_users", h.HandleAllUsers).Methods("GET")
	r.HandleFunc("/chat/history", h.HandleHistory).Methods("GET")
	r.HandleFunc("/chat/search", h.HandleSearch).Methods("GET")
	r.HandleFunc("/healthz", h.HandleHealth).Methods("GET")

	return r
}

// HandleWebSocket handles GET /chat/ws. The credential travels as a query
// parameter; a missing or invalid one closes the fresh connection with a
// policy-violation code before any registry mutation.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	identity, name, err := h.provider.Resolve(r.URL.Query().Get("token"))
	if err != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid credential")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(h.config.WriteTimeout))
		_ = conn.Close()
		return
	}

	if err := h.directory.SaveProfile(identity, name); err != nil {
		h.log.Warn("Failed to save profile", "identity", identity, "error", err)
	}

	session := NewSession(h.log, conn, identity, name,
		h.registry, h.router, h.stats,
		h.config.ConnectionBufferSize, h.config.WriteTimeout)
	session.Run(r.Context())
}

// HandleAllUsers handles GET /chat/all_users with a point-in-time presence
// snapshot.
func (h *Handler) HandleAllUsers(w http.ResponseWriter, _ *http.Request) {
	identities := h.registry.Snapshot()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"users_list": lo.Map(identities, func(id domain.Identity, _ int) string {
			return id.String()
		}),
	})
}

type historyItem struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name"`
	Receiver   string    `json:"receiver"`
	Text       string    `json:"text"`
	Lang       string    `json:"lang,omitempty"`
	Posted     time.Time `json:"posted"`
}

// HandleHistory handles GET /chat/history: the requester's view of the log,
// ordered by timestamp ascending, with cursor pagination.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var cursor *string
	if value := r.URL.Query().Get("cursor"); value != "" {
		cursor = &value
	}

	records, next, err := h.messages.History(requester, cursor)
	if err != nil {
		h.log.Error("History query failed", "requester", requester, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "history unavailable"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"messages": lo.Map(records, func(record repositories.Record, _ int) historyItem {
			return h.toHistoryItem(record)
		}),
		"cursor": next,
	})
}

func (h *Handler) toHistoryItem(record repositories.Record) historyItem {
	receiver := domain.BroadcastScope
	if record.Receiver != nil {
		receiver = record.Receiver.String()
	}

	name := record.Sender.String()
	if record.Sender != domain.System {
		if resolved, err := h.directory.DisplayName(record.Sender); err == nil {
			name = resolved
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			h.log.Warn("Display name lookup failed", "identity", record.Sender, "error", err)
		}
	}

	return historyItem{
		ID:         record.ID.String(),
		Sender:     record.Sender.String(),
		SenderName: name,
		Receiver:   receiver,
		Text:       record.Text,
		Lang:       record.Lang,
		Posted:     record.At,
	}
}

// HandleSearch handles GET /chat/search over indexed broadcast messages.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	terms := strings.TrimSpace(r.URL.Query().Get("q"))
	if terms == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing query"})
		return
	}

	hits, err := h.index.Search(r.Context(), terms, h.config.SearchLimit)
	if err != nil {
		h.log.Error("Search failed", "terms", terms, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "search unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": len(h.registry.Snapshot()),
		"stats":     h.stats.Snapshot(),
	})
}

// authenticate resolves the Bearer credential of a collaborator endpoint.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	credential := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	identity, _, err := h.provider.Resolve(credential)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credential"})
		return 0, false
	}
	return identity, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}
