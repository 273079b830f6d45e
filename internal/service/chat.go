package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"dora/internal/metrics"
	"dora/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore keeps chat sessions. Get returns model.ErrNotFound for
// unknown ids.
type SessionStore interface {
	Get(ctx context.Context, id string) (*model.ChatSession, error)
	Put(ctx context.Context, session *model.ChatSession) error
	Delete(ctx context.Context, id string) error
	// List returns the most recently active sessions first
	List(ctx context.Context, limit int) ([]model.SessionSummary, error)
	// Prune removes sessions idle since before cutoff
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// ChatEventCallback is called for streaming chat events
type ChatEventCallback func(event string, data any) error

// ChatService routes each user message through the registration dialogue,
// the intent classifier, location search and the response composer, and
// persists the session afterwards. Messages within one session are
// serialized.
type ChatService struct {
	classifier *IntentClassifier
	search     *LocationSearch
	composer   *ResponseComposer
	dialogue   *RegistrationDialogue
	fallback   *FallbackTable
	completer  TextCompleter
	sessions   SessionStore
	logger     *zap.Logger
	locks      *keyedMutex
	now        func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(
	classifier *IntentClassifier,
	search *LocationSearch,
	composer *ResponseComposer,
	dialogue *RegistrationDialogue,
	fallback *FallbackTable,
	completer TextCompleter,
	sessions SessionStore,
	logger *zap.Logger,
) *ChatService {
	if completer == nil {
		completer = DisabledCompleter{}
	}
	return &ChatService{
		classifier: classifier,
		search:     search,
		composer:   composer,
		dialogue:   dialogue,
		fallback:   fallback,
		completer:  completer,
		sessions:   sessions,
		logger:     logger,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// Welcome is the greeting shown at the start of a new session
func (s *ChatService) Welcome() string {
	return "👋 Hi! I'm DORA, your campus and volunteer assistant at Sri Eshwar College of Engineering.\n\n" +
		"🏫 Ask me where things are: \"Where is the AI & ML Block?\"\n" +
		"🙋 Discover volunteer events: \"What events are coming up?\"\n" +
		"📝 Sign up for one: \"I want to register for Tree Plantation Drive\""
}

// HandleMessage answers one user message. An empty sessionID starts a new
// session.
func (s *ChatService) HandleMessage(ctx context.Context, sessionID, message string) (*model.ChatReply, error) {
	return s.handle(ctx, sessionID, message, nil)
}

// HandleMessageStream is HandleMessage that reports progress through
// callback: an "intent" event once the route is known, then "chunk" events
// carrying reply text. The caller sends its own terminal event.
func (s *ChatService) HandleMessageStream(ctx context.Context, sessionID, message string, callback ChatEventCallback) (*model.ChatReply, error) {
	if callback == nil {
		callback = func(string, any) error { return nil }
	}
	return s.handle(ctx, sessionID, message, callback)
}

func (s *ChatService) handle(ctx context.Context, sessionID, message string, callback ChatEventCallback) (*model.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &model.ValidationError{Field: "message", Message: "Message is required"}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reply := &model.ChatReply{SessionID: sessionID, Timestamp: now}
	history := session.Messages

	switch {
	case session.Registration != nil && session.Registration.Active:
		s.advanceRegistration(ctx, session, message, reply)
	default:
		intent := s.classifier.Classify(message)
		metrics.IntentClassifications.WithLabelValues(string(intent.Mode)).Inc()
		reply.Mode = intent.Mode
		reply.Intent = &intent

		if s.startRegistration(session, message, intent, reply) {
			break
		}
		if err := s.emit(callback, "intent", reply.Intent); err != nil {
			return nil, err
		}
		if err := s.answer(ctx, message, intent, history, now, reply, callback); err != nil {
			return nil, err
		}
	}

	if reply.IsRegistrationFlow {
		if err := s.emit(callback, "intent", reply.Intent); err != nil {
			return nil, err
		}
		if err := s.emit(callback, "chunk", &StreamChunk{Content: reply.Response, Done: true}); err != nil {
			return nil, err
		}
	}

	s.record(session, message, reply, now)
	if err := s.sessions.Put(ctx, session); err != nil {
		s.logger.Error("failed to persist chat session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("%w: save session: %v", model.ErrStorageUnavailable, err)
	}

	metrics.ChatMessages.WithLabelValues(string(reply.Source), string(reply.Mode)).Inc()
	return reply, nil
}

func (s *ChatService) loadSession(ctx context.Context, id string) (*model.ChatSession, error) {
	session, err := s.sessions.Get(ctx, id)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, model.ErrNotFound):
		now := s.now()
		return &model.ChatSession{ID: id, Messages: []model.ChatMessage{}, CreatedAt: now, UpdatedAt: now}, nil
	default:
		s.logger.Error("failed to load chat session", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: load session: %v", model.ErrStorageUnavailable, err)
	}
}

func (s *ChatService) advanceRegistration(ctx context.Context, session *model.ChatSession, message string, reply *model.ChatReply) {
	reply.Mode = model.ModeVolunteer
	reply.Source = model.SourceRegistration
	reply.IsRegistrationFlow = true

	turn, err := s.dialogue.Advance(ctx, session.ID, *session.Registration, message)
	if err != nil {
		s.logger.Warn("resetting malformed registration state", zap.String("session_id", session.ID), zap.Error(err))
		session.Registration = nil
		reply.Response = "⚠️ Something went wrong with your registration, so I've reset it. Please start again by saying \"I want to register for [event name]\"."
		return
	}
	reply.Response = turn.Reply
	s.setRegistration(session, turn.State)
}

// startRegistration opens a dialogue for a registration-intent message. A
// campus-classified message only starts one when it names an event, so
// "join me at the library" stays a location query.
func (s *ChatService) startRegistration(session *model.ChatSession, message string, intent model.IntentResult, reply *model.ChatReply) bool {
	if !s.dialogue.HasIntent(message) {
		return false
	}
	if intent.Mode == model.ModeCampus {
		if _, found := s.dialogue.catalog.FindInMessage(message, true); !found {
			return false
		}
	}

	turn, ok := s.dialogue.Start(message)
	if !ok {
		return false
	}
	reply.Mode = model.ModeVolunteer
	reply.Source = model.SourceRegistration
	reply.IsRegistrationFlow = true
	reply.Response = turn.Reply
	s.setRegistration(session, turn.State)
	return true
}

func (s *ChatService) setRegistration(session *model.ChatSession, state model.RegistrationSession) {
	if !state.Active {
		session.Registration = nil
		return
	}
	session.Registration = &state
}

// answer fills reply from a local answer, the completer or the fallback
// table. A failing callback ends the turn with its error.
func (s *ChatService) answer(ctx context.Context, message string, intent model.IntentResult, history []model.ChatMessage, now time.Time, reply *model.ChatReply, callback ChatEventCallback) error {
	var matches []model.LocationRecord
	if intent.Mode == model.ModeCampus {
		matches = s.search.Search(ctx, message)
	}

	comp := s.composer.Compose(ctx, ComposeInput{
		Message: message,
		Intent:  intent,
		Matches: matches,
		History: history,
		Now:     now,
	})
	reply.Matches = comp.Matches

	if comp.Kind == KindLocalAnswer {
		reply.Response = comp.Text
		reply.Source = model.SourceLocal
		return s.emit(callback, "chunk", &StreamChunk{Content: comp.Text, Done: true})
	}

	var streamErr error
	if callback != nil {
		inner := callback
		callback = func(event string, data any) error {
			if err := inner(event, data); err != nil {
				streamErr = err
				return err
			}
			return nil
		}
	}

	text, err := s.complete(ctx, comp.Prompt, callback)
	if streamErr != nil {
		return streamErr
	}
	if err != nil {
		var up *model.UpstreamError
		if errors.As(err, &up) && up.Kind != model.UpstreamDisabled {
			s.logger.Warn("falling back after completion failure",
				zap.String("mode", string(intent.Mode)),
				zap.String("provider", up.Provider),
				zap.String("kind", string(up.Kind)),
			)
		}
		reply.Response = s.fallback.Response(intent.Mode, message, comp, now)
		reply.Source = model.SourceFallback
		return s.emit(callback, "chunk", &StreamChunk{Content: reply.Response, Done: true})
	}
	reply.Response = text
	reply.Source = model.SourceAI
	return nil
}

// complete streams when both the caller and the completer support it. A
// non-streaming completer emits its reply as one chunk.
func (s *ChatService) complete(ctx context.Context, prompt string, callback ChatEventCallback) (string, error) {
	if callback == nil {
		return s.completer.Complete(ctx, prompt)
	}
	if sc, ok := s.completer.(StreamingCompleter); ok {
		return sc.CompleteStream(ctx, prompt, func(chunk *StreamChunk) error {
			if chunk.Content == "" && chunk.ThinkingContent == "" {
				return nil
			}
			return callback("chunk", chunk)
		})
	}
	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return text, callback("chunk", &StreamChunk{Content: text, Done: true})
}

func (s *ChatService) emit(callback ChatEventCallback, event string, data any) error {
	if callback == nil {
		return nil
	}
	return callback(event, data)
}

func (s *ChatService) record(session *model.ChatSession, message string, reply *model.ChatReply, now time.Time) {
	if session.Title == "" {
		session.Title = sessionTitle(message)
	}
	session.Messages = append(session.Messages,
		model.ChatMessage{Role: model.RoleUser, Content: message, Timestamp: now},
		model.ChatMessage{Role: model.RoleAssistant, Content: reply.Response, Mode: reply.Mode, Timestamp: now},
	)
	session.UpdatedAt = now
}

func sessionTitle(message string) string {
	if utf8.RuneCountInString(message) <= 50 {
		return message
	}
	return string([]rune(message)[:50]) + "..."
}

// GetSession returns a stored session
func (s *ChatService) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.sessions.Get(ctx, id)
}

// DeleteSession drops a session together with any in-progress registration
func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.sessions.Delete(ctx, id)
}

// ListSessions returns recent session summaries
func (s *ChatService) ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	return s.sessions.List(ctx, limit)
}

// PruneIdle removes sessions with no activity for longer than ttl
func (s *ChatService) PruneIdle(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := s.sessions.Prune(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned idle chat sessions", zap.Int("count", n))
	}
	return n, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
