// Package roomtest is an in-memory room server speaking the same HTTP and push
// contract as the production server. It backs integration tests and the
// devserver command.
package roomtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

const (
	chatHistoryLimit = 100
	streamDepth      = 64
	timestampLayout  = "2006-01-02T15:04:05.000000"
)

// Options configures a Server.
type Options struct {
	// APIPrefix defaults to /api.
	APIPrefix string
	// PingInterval defaults to 30s.
	PingInterval time.Duration
	// ChatDelay holds each chat response for the given duration.
	ChatDelay time.Duration
	Logger    pslog.Logger
}

// Server holds rooms, participants and push streams in memory.
type Server struct {
	prefix    string
	ping      time.Duration
	chatDelay time.Duration
	log       pslog.Logger
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	rooms    map[schema.RoomID]*room
	sessions map[schema.ParticipantID]schema.RoomID
	streams  map[schema.ParticipantID]*stream
	counts   map[string]int
}

type room struct {
	id        schema.RoomID
	name      string
	code      string
	language  schema.Language
	createdAt time.Time
	order     []schema.ParticipantID
	users     map[schema.ParticipantID]schema.RosterEntry
	cursors   map[schema.ParticipantID]schema.CursorUpdatedPayload
	chat      []schema.ChatMessage
	typing    map[schema.ParticipantID]typingEntry
}

type typingEntry struct {
	UserID    schema.ParticipantID `json:"user_id"`
	UserName  schema.DisplayName   `json:"user_name"`
	Timestamp string               `json:"timestamp"`
}

type typingRequest struct {
	RoomID   schema.RoomID        `json:"room_id"`
	UserID   schema.ParticipantID `json:"user_id"`
	UserName schema.DisplayName   `json:"user_name"`
	IsTyping bool                 `json:"is_typing"`
}

type stream struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *stream) close() {
	s.once.Do(func() { close(s.done) })
}

// RoomView is a copy of a room for assertions.
type RoomView struct {
	ID       schema.RoomID
	Name     string
	Code     string
	Language schema.Language
	Users    []schema.RosterEntry
	Chat     []schema.ChatMessage
}

// New constructs a Server.
func New(opts Options) *Server {
	prefix := strings.TrimRight(strings.TrimSpace(opts.APIPrefix), "/")
	if prefix == "" {
		prefix = schema.DefaultAPIPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Server{
		prefix:    prefix,
		ping:      ping,
		chatDelay: opts.ChatDelay,
		log:       logger.With("component", "roomtest"),
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		rooms:     make(map[schema.RoomID]*room),
		sessions:  make(map[schema.ParticipantID]schema.RoomID),
		streams:   make(map[schema.ParticipantID]*stream),
		counts:    make(map[string]int),
	}
}

// Start serves the handler on a loopback listener. Callers own Close.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.Handler())
}

// Handler returns the chi router for the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "healthy"})
	})
	r.Route(s.prefix, func(r chi.Router) {
		r.Post("/rooms", s.handleCreate)
		r.Get("/rooms/{roomID}", s.handleGet)
		r.Delete("/rooms/{roomID}", s.handleDelete)
		r.Post("/rooms/{roomID}/save", s.handleSave)
		r.Post("/rooms/join", s.handleJoin)
		r.Post("/rooms/code", s.handleCode)
		r.Post("/rooms/cursor", s.handleCursor)
		r.Post("/send-chat-message", s.handleChat)
		r.Post("/typing-status", s.handleTyping)
		r.Post("/leave-room", s.handleLeave)
		r.Get("/sse/{userID}", s.handleSSE)
		r.Get("/ws/{userID}", s.handleWebSocket)
	})
	return r
}

// Count returns how many requests hit op ("create", "join", "code", "cursor",
// "chat", "save", "delete", "leave", "typing", "sse", "ws").
func (s *Server) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[op]
}

// Room returns a copy of a room.
func (s *Server) Room(id schema.RoomID) (RoomView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.rooms[id]
	if rm == nil {
		return RoomView{}, false
	}
	return RoomView{
		ID:       rm.id,
		Name:     rm.name,
		Code:     rm.code,
		Language: rm.language,
		Users:    rm.roster(),
		Chat:     append([]schema.ChatMessage(nil), rm.chat...),
	}, true
}

// Connected reports whether a participant has a live push stream.
func (s *Server) Connected(id schema.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.streams[id]
	return ok
}

// DropStream closes a participant's push stream as if the network failed.
func (s *Server) DropStream(id schema.ParticipantID) bool {
	s.mu.Lock()
	st := s.streams[id]
	delete(s.streams, id)
	s.mu.Unlock()
	if st == nil {
		return false
	}
	st.close()
	s.log.Info("roomtest stream dropped", "participant", id)
	return true
}

// PushRaw queues a raw frame to one participant.
func (s *Server) PushRaw(id schema.ParticipantID, raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streams[id]
	if st == nil {
		return false
	}
	return offer(st, raw)
}

// Push queues a typed frame to one participant.
func (s *Server) Push(id schema.ParticipantID, frameType schema.FrameType, payload any) bool {
	raw, err := schema.EncodeFrame(frameType, payload)
	if err != nil {
		return false
	}
	return s.PushRaw(id, raw)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.count("create")
	var req schema.CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	lang := req.Language
	if lang == "" {
		lang = schema.DefaultLanguage
	}
	rm := &room{
		id:        schema.RoomID(uuid.NewString()),
		name:      req.Name,
		language:  lang,
		createdAt: time.Now().UTC(),
		users:     make(map[schema.ParticipantID]schema.RosterEntry),
		cursors:   make(map[schema.ParticipantID]schema.CursorUpdatedPayload),
		typing:    make(map[schema.ParticipantID]typingEntry),
	}
	s.mu.Lock()
	s.rooms[rm.id] = rm
	s.mu.Unlock()
	s.log.Info("roomtest room created", "room", rm.id, "name", rm.name, "language", rm.language)
	writeJSON(w, schema.CreateRoomResponse{
		ID:        rm.id,
		Name:      rm.name,
		Code:      rm.code,
		Language:  rm.language,
		CreatedAt: rm.createdAt.Format(timestampLayout),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := schema.RoomID(chi.URLParam(r, "roomID"))
	s.mu.Lock()
	rm := s.rooms[id]
	var resp schema.CreateRoomResponse
	if rm != nil {
		resp = schema.CreateRoomResponse{ID: rm.id, Name: rm.name, Code: rm.code, Language: rm.language, CreatedAt: rm.createdAt.Format(timestampLayout)}
	}
	s.mu.Unlock()
	if rm == nil {
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.count("join")
	var req schema.JoinRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	rm := s.rooms[req.RoomID]
	if rm == nil {
		s.mu.Unlock()
		writeJSON(w, schema.JoinRoomResponse{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	rm.addUser(schema.RosterEntry{UserID: req.UserID, UserName: req.UserName})
	s.sessions[req.UserID] = rm.id
	users := rm.roster()
	resp := schema.JoinRoomResponse{
		RoomID:       rm.id,
		RoomName:     rm.name,
		Code:         rm.code,
		Language:     rm.language,
		UserID:       req.UserID,
		UserName:     req.UserName,
		Users:        users,
		ChatMessages: append([]schema.ChatMessage{}, rm.chat...),
	}
	s.broadcastLocked(rm, schema.FrameUserJoined, schema.RosterPayload{UserID: req.UserID, UserName: req.UserName, Users: users}, req.UserID)
	s.mu.Unlock()
	s.log.Info("roomtest user joined", "room", rm.id, "participant", req.UserID, "users", len(users))
	writeJSON(w, resp)
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	s.count("code")
	var req schema.UpdateCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.rooms[req.RoomID]
	if rm == nil {
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	rm.code = req.Code
	name := s.nameLocked(rm, req.UserID, req.UserName)
	s.broadcastLocked(rm, schema.FrameCodeUpdated, schema.CodeUpdatedPayload{
		Code:     req.Code,
		UserID:   req.UserID,
		UserName: name,
		FileID:   req.FileID,
	}, req.UserID)
	writeJSON(w, schema.Ack{Success: true})
}

func (s *Server) handleCursor(w http.ResponseWriter, r *http.Request) {
	s.count("cursor")
	var req schema.UpdateCursorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.rooms[req.RoomID]
	if rm == nil {
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	payload := schema.CursorUpdatedPayload{
		UserID:   req.UserID,
		UserName: s.nameLocked(rm, req.UserID, req.UserName),
		Position: req.Position,
	}
	rm.cursors[req.UserID] = payload
	s.broadcastLocked(rm, schema.FrameCursorUpdated, payload, req.UserID)
	writeJSON(w, schema.Ack{Success: true})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.count("save")
	id := schema.RoomID(chi.URLParam(r, "roomID"))
	s.mu.Lock()
	_, ok := s.rooms[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	writeJSON(w, schema.Ack{Message: "File saved successfully"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.count("delete")
	id := schema.RoomID(chi.URLParam(r, "roomID"))
	s.mu.Lock()
	rm := s.rooms[id]
	if rm != nil {
		delete(s.rooms, id)
		for _, uid := range rm.order {
			if s.sessions[uid] == id {
				delete(s.sessions, uid)
			}
		}
	}
	s.mu.Unlock()
	if rm == nil {
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	s.log.Info("roomtest room deleted", "room", id)
	writeJSON(w, schema.Ack{Success: true, Message: "Room deleted successfully"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.count("chat")
	var req schema.SendChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	if s.chatDelay > 0 {
		select {
		case <-time.After(s.chatDelay):
		case <-r.Context().Done():
			return
		}
	}
	message, err := schema.NormalizeChatBody(req.Message)
	if err != nil {
		writeJSON(w, schema.SendChatResponse{Error: err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.rooms[req.RoomID]
	if rm == nil {
		writeJSON(w, schema.SendChatResponse{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	msg := schema.ChatMessage{
		ID:        schema.MessageID(uuid.NewString()),
		UserID:    req.UserID,
		UserName:  req.UserName,
		Message:   message,
		Timestamp: time.Now().UTC().Format(timestampLayout),
	}
	rm.chat = append(rm.chat, msg)
	if len(rm.chat) > chatHistoryLimit {
		rm.chat = append([]schema.ChatMessage(nil), rm.chat[len(rm.chat)-chatHistoryLimit:]...)
	}
	s.broadcastLocked(rm, schema.FrameChatMessage, msg, "")
	writeJSON(w, schema.SendChatResponse{Success: true, MessageID: msg.ID})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	s.count("typing")
	var req typingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.rooms[req.RoomID]
	if rm == nil {
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	if req.IsTyping {
		rm.typing[req.UserID] = typingEntry{UserID: req.UserID, UserName: req.UserName, Timestamp: time.Now().UTC().Format(timestampLayout)}
	} else {
		delete(rm.typing, req.UserID)
	}
	entries := make([]typingEntry, 0, len(rm.typing))
	for _, uid := range rm.order {
		if entry, ok := rm.typing[uid]; ok {
			entries = append(entries, entry)
		}
	}
	s.broadcastLocked(rm, schema.FrameTypingStatus, map[string]any{"typing_users": entries}, req.UserID)
	writeJSON(w, schema.Ack{Success: true})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.count("leave")
	var req schema.LeaveRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	rm := s.rooms[req.RoomID]
	if rm == nil {
		s.mu.Unlock()
		writeJSON(w, schema.Ack{Error: schema.ErrRoomNotFound.Error()})
		return
	}
	rm.removeUser(req.UserID)
	delete(s.sessions, req.UserID)
	st := s.streams[req.UserID]
	delete(s.streams, req.UserID)
	users := rm.roster()
	s.broadcastLocked(rm, schema.FrameUserLeft, schema.RosterPayload{UserID: req.UserID, UserName: req.UserName, Users: users}, "")
	s.mu.Unlock()
	if st != nil {
		st.close()
	}
	s.log.Info("roomtest user left", "room", rm.id, "participant", req.UserID, "users", len(users))
	writeJSON(w, schema.Ack{Success: true, Message: "Left room successfully"})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	s.count("sse")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeStatus(w, http.StatusInternalServerError, map[string]any{"error": "stream unsupported"})
		return
	}
	id := schema.ParticipantID(chi.URLParam(r, "userID"))
	st := s.attach(id)
	defer s.detach(id, st)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := s.log.With("participant", id, "transport", "sse")
	log.Info("roomtest stream opened")
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			log.Info("roomtest stream closed")
			return
		case <-st.done:
			log.Info("roomtest stream dropped")
			return
		case raw := <-st.frames:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", pingFrame())
			flusher.Flush()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.count("ws")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("roomtest websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	id := schema.ParticipantID(chi.URLParam(r, "userID"))
	st := s.attach(id)
	defer s.detach(id, st)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := s.log.With("participant", id, "transport", "websocket")
	log.Info("roomtest stream opened")
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()
	for {
		var raw []byte
		select {
		case <-readDone:
			log.Info("roomtest stream closed")
			return
		case <-st.done:
			log.Info("roomtest stream dropped")
			return
		case raw = <-st.frames:
		case <-ticker.C:
			raw = pingFrame()
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Warn("roomtest stream write failed", "err", err)
			return
		}
	}
}

func (s *Server) attach(id schema.ParticipantID) *stream {
	st := &stream{frames: make(chan []byte, streamDepth), done: make(chan struct{})}
	s.mu.Lock()
	prev := s.streams[id]
	s.streams[id] = st
	s.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	return st
}

func (s *Server) detach(id schema.ParticipantID, st *stream) {
	s.mu.Lock()
	if s.streams[id] == st {
		delete(s.streams, id)
	}
	s.mu.Unlock()
	st.close()
}

func (s *Server) broadcastLocked(rm *room, frameType schema.FrameType, payload any, exclude schema.ParticipantID) {
	raw, err := schema.EncodeFrame(frameType, payload)
	if err != nil {
		s.log.Warn("roomtest frame encode failed", "type", frameType, "err", err)
		return
	}
	recipients := 0
	for _, uid := range rm.order {
		if uid == exclude {
			continue
		}
		if st := s.streams[uid]; st != nil && offer(st, raw) {
			recipients++
		}
	}
	s.log.Trace("roomtest broadcast", "room", rm.id, "type", frameType, "recipients", recipients)
}

func (s *Server) nameLocked(rm *room, id schema.ParticipantID, name schema.DisplayName) schema.DisplayName {
	if name != "" {
		return name
	}
	if entry, ok := rm.users[id]; ok && entry.UserName != "" {
		return entry.UserName
	}
	return schema.DisplayName(id)
}

func (s *Server) count(op string) {
	s.mu.Lock()
	s.counts[op]++
	s.mu.Unlock()
}

func (rm *room) addUser(entry schema.RosterEntry) {
	if _, ok := rm.users[entry.UserID]; !ok {
		rm.order = append(rm.order, entry.UserID)
	}
	rm.users[entry.UserID] = entry
}

func (rm *room) removeUser(id schema.ParticipantID) {
	if _, ok := rm.users[id]; !ok {
		return
	}
	delete(rm.users, id)
	delete(rm.cursors, id)
	delete(rm.typing, id)
	out := rm.order[:0]
	for _, uid := range rm.order {
		if uid != id {
			out = append(out, uid)
		}
	}
	rm.order = out
}

func (rm *room) roster() []schema.RosterEntry {
	out := make([]schema.RosterEntry, 0, len(rm.order))
	for _, uid := range rm.order {
		out = append(out, rm.users[uid])
	}
	return out
}

func offer(st *stream, raw []byte) bool {
	select {
	case <-st.done:
		return false
	default:
	}
	select {
	case st.frames <- raw:
		return true
	default:
		return false
	}
}

func pingFrame() []byte {
	raw, _ := schema.EncodeFrame(schema.FramePing, nil)
	return raw
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeStatus(w, http.StatusOK, payload)
}

func writeStatus(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
