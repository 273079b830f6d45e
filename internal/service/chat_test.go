package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dora/internal/model"
	"dora/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func (f *fakeCompleter) Provider() string { return "fake" }

type streamingFake struct {
	fakeCompleter
	chunks []string
}

func (f *streamingFake) CompleteStream(_ context.Context, _ string, callback StreamCallback) (string, error) {
	var b strings.Builder
	for _, c := range f.chunks {
		b.WriteString(c)
		if err := callback(&StreamChunk{Content: c}); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

type brokenSessions struct {
	*repository.MemorySessionStore
	getErr error
	putErr error
}

func (b *brokenSessions) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.MemorySessionStore.Get(ctx, id)
}

func (b *brokenSessions) Put(ctx context.Context, s *model.ChatSession) error {
	if b.putErr != nil {
		return b.putErr
	}
	return b.MemorySessionStore.Put(ctx, s)
}

type chatFixture struct {
	chat          *ChatService
	sessions      SessionStore
	registrations *repository.MemoryRegistrationRepository
}

func newChatFixture(completer TextCompleter, sessions SessionStore) *chatFixture {
	if sessions == nil {
		sessions = repository.NewMemorySessionStore()
	}
	store := NewStaticLocationStore(searchFixture)
	catalog := NewEventCatalog(eventFixture)
	registrations := repository.NewMemoryRegistrationRepository()
	chat := NewChatService(
		NewIntentClassifier(),
		NewLocationSearch(store, 16),
		NewResponseComposer(store, catalog),
		NewRegistrationDialogue(catalog, registrations, zap.NewNop()),
		NewFallbackTable(catalog),
		completer,
		sessions,
		zap.NewNop(),
	)
	return &chatFixture{chat: chat, sessions: sessions, registrations: registrations}
}

func TestChatService_LocalAnswer(t *testing.T) {
	completer := &fakeCompleter{text: "unused"}
	f := newChatFixture(completer, nil)
	ctx := context.Background()

	reply, err := f.chat.HandleMessage(ctx, "", "Where is the library?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, model.ModeCampus, reply.Mode)
	assert.Equal(t, model.SourceLocal, reply.Source)
	assert.Contains(t, reply.Response, "**Library** - Found!")
	assert.Empty(t, completer.prompts)

	session, err := f.sessions.Get(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Where is the library?", session.Title)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, model.RoleUser, session.Messages[0].Role)
	assert.Equal(t, reply.Response, session.Messages[1].Content)
	assert.Equal(t, model.ModeCampus, session.Messages[1].Mode)
}

func TestChatService_Delegation(t *testing.T) {
	t.Run("campus without match asks the completer", func(t *testing.T) {
		completer := &fakeCompleter{text: "There is no pool, but try the Canteen."}
		f := newChatFixture(completer, nil)

		reply, err := f.chat.HandleMessage(context.Background(), "s1", "where is the swimming pool")
		require.NoError(t, err)
		assert.Equal(t, model.SourceAI, reply.Source)
		assert.Equal(t, completer.text, reply.Response)
		require.Len(t, completer.prompts, 1)
		assert.Contains(t, completer.prompts[0], "CAMPUS DATA CONTEXT")
	})

	t.Run("campus fallback lists locations", func(t *testing.T) {
		f := newChatFixture(&fakeCompleter{err: &model.UpstreamError{Provider: "fake", Kind: model.UpstreamServer}}, nil)

		reply, err := f.chat.HandleMessage(context.Background(), "s1", "where is the swimming pool")
		require.NoError(t, err)
		assert.Equal(t, model.SourceFallback, reply.Source)
		assert.Contains(t, reply.Response, "**Available Locations** (5 total)")
	})

	t.Run("disabled completer", func(t *testing.T) {
		f := newChatFixture(nil, nil)

		reply, err := f.chat.HandleMessage(context.Background(), "s1", "what volunteer opportunities are there")
		require.NoError(t, err)
		assert.Equal(t, model.ModeVolunteer, reply.Mode)
		assert.Equal(t, model.SourceFallback, reply.Source)
		assert.NotEmpty(t, reply.Response)
	})

	t.Run("history reaches the prompt", func(t *testing.T) {
		completer := &fakeCompleter{text: "ok"}
		f := newChatFixture(completer, nil)
		ctx := context.Background()

		_, err := f.chat.HandleMessage(ctx, "s1", "Where is the library?")
		require.NoError(t, err)
		_, err = f.chat.HandleMessage(ctx, "s1", "any upcoming events?")
		require.NoError(t, err)
		require.Len(t, completer.prompts, 1)
		assert.Contains(t, completer.prompts[0], "user: Where is the library?")
	})
}

func TestChatService_Validation(t *testing.T) {
	f := newChatFixture(nil, nil)

	_, err := f.chat.HandleMessage(context.Background(), "s1", "  \n ")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.Field("message"), ve.Field)

	_, err = f.sessions.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestChatService_StorageFailures(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		f := newChatFixture(nil, &brokenSessions{MemorySessionStore: repository.NewMemorySessionStore(), getErr: errors.New("connection refused")})
		_, err := f.chat.HandleMessage(context.Background(), "s1", "hello")
		assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	})

	t.Run("save", func(t *testing.T) {
		f := newChatFixture(nil, &brokenSessions{MemorySessionStore: repository.NewMemorySessionStore(), putErr: errors.New("connection refused")})
		_, err := f.chat.HandleMessage(context.Background(), "s1", "hello")
		assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	})
}

func TestChatService_Registration(t *testing.T) {
	f := newChatFixture(&fakeCompleter{text: "unused"}, nil)
	ctx := context.Background()

	reply, err := f.chat.HandleMessage(ctx, "s1", "register for Tree Plantation")
	require.NoError(t, err)
	assert.True(t, reply.IsRegistrationFlow)
	assert.Equal(t, model.SourceRegistration, reply.Source)
	assert.Equal(t, model.ModeVolunteer, reply.Mode)

	session, err := f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.Registration)
	assert.Equal(t, model.StageCollectInfo, session.Registration.Stage)

	// Even a location question is read as a form answer while the dialogue is open
	reply, err = f.chat.HandleMessage(ctx, "s1", "Where is the library?")
	require.NoError(t, err)
	assert.True(t, reply.IsRegistrationFlow)
	assert.Contains(t, reply.Response, "roll number")

	for _, msg := range formAnswers[1:] {
		_, err = f.chat.HandleMessage(ctx, "s1", msg)
		require.NoError(t, err)
	}
	reply, err = f.chat.HandleMessage(ctx, "s1", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply.Response, "Registration Confirmed")

	session, err = f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session.Registration)

	records, err := f.registrations.List(ctx, model.RegistrationFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Where is the library?", records[0].Name)
}

func TestChatService_DecliningReplyDoesNotRegister(t *testing.T) {
	f := newChatFixture(nil, nil)
	ctx := context.Background()

	_, err := f.chat.HandleMessage(ctx, "s1", "register for Tree Plantation")
	require.NoError(t, err)
	for _, msg := range formAnswers {
		_, err = f.chat.HandleMessage(ctx, "s1", msg)
		require.NoError(t, err)
	}

	reply, err := f.chat.HandleMessage(ctx, "s1", "no, I'm not sure")
	require.NoError(t, err)
	assert.Contains(t, reply.Response, "Registration cancelled")

	records, err := f.registrations.List(ctx, model.RegistrationFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)

	session, err := f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session.Registration)
}

func TestChatService_CampusJoinStaysLocation(t *testing.T) {
	f := newChatFixture(nil, nil)

	reply, err := f.chat.HandleMessage(context.Background(), "s1", "join me at the library")
	require.NoError(t, err)
	assert.False(t, reply.IsRegistrationFlow)
	assert.Equal(t, model.ModeCampus, reply.Mode)
	assert.Equal(t, model.SourceLocal, reply.Source)
}

func TestChatService_MalformedRegistrationResets(t *testing.T) {
	f := newChatFixture(nil, nil)
	ctx := context.Background()

	require.NoError(t, f.sessions.Put(ctx, &model.ChatSession{
		ID:           "s1",
		Registration: &model.RegistrationSession{Active: true, Stage: model.StageCollectInfo, CurrentFieldIndex: 3},
		UpdatedAt:    time.Now(),
	}))

	reply, err := f.chat.HandleMessage(ctx, "s1", "Asha")
	require.NoError(t, err)
	assert.Contains(t, reply.Response, "I've reset it")

	session, err := f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session.Registration)
}

func TestChatService_Stream(t *testing.T) {
	completer := &streamingFake{chunks: []string{"Here ", "are ", "events"}}
	f := newChatFixture(completer, nil)

	var events []string
	var text strings.Builder
	reply, err := f.chat.HandleMessageStream(context.Background(), "s1", "what volunteer opportunities are there", func(event string, data any) error {
		events = append(events, event)
		if chunk, ok := data.(*StreamChunk); ok {
			text.WriteString(chunk.Content)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"intent", "chunk", "chunk", "chunk"}, events)
	assert.Equal(t, "Here are events", text.String())
	assert.Equal(t, "Here are events", reply.Response)
	assert.Equal(t, model.SourceAI, reply.Source)
}

func TestChatService_StreamRegistration(t *testing.T) {
	f := newChatFixture(nil, nil)

	var events []string
	_, err := f.chat.HandleMessageStream(context.Background(), "s1", "register for Tree Plantation", func(event string, _ any) error {
		events = append(events, event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"intent", "chunk"}, events)
}

func TestChatService_StreamWriterFailure(t *testing.T) {
	gone := errors.New("client went away")
	failOnChunk := func(event string, _ any) error {
		if event == "chunk" {
			return gone
		}
		return nil
	}

	tests := []struct {
		name      string
		completer TextCompleter
		message   string
	}{
		{"local answer", nil, "Where is the library?"},
		{"fallback", &fakeCompleter{err: &model.UpstreamError{Provider: "fake", Kind: model.UpstreamServer}}, "what volunteer opportunities are there"},
		{"streamed completion", &streamingFake{chunks: []string{"Here ", "are ", "events"}}, "what volunteer opportunities are there"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(tt.completer, nil)

			reply, err := f.chat.HandleMessageStream(context.Background(), "s1", tt.message, failOnChunk)
			assert.ErrorIs(t, err, gone)
			assert.Nil(t, reply)

			_, err = f.sessions.Get(context.Background(), "s1")
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestChatService_ConcurrentMessagesSerialize(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newChatFixture(&fakeCompleter{text: "ok"}, nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.chat.HandleMessage(ctx, "shared", fmt.Sprintf("Where is the library? #%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	session, err := f.sessions.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, session.Messages, 2*n)
	for i := 0; i < len(session.Messages); i += 2 {
		assert.Equal(t, model.RoleUser, session.Messages[i].Role)
		assert.Equal(t, model.RoleAssistant, session.Messages[i+1].Role)
	}
	assert.Empty(t, f.chat.locks.locks)
}

func TestChatService_Sessions(t *testing.T) {
	f := newChatFixture(nil, nil)
	ctx := context.Background()
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	f.chat.now = func() time.Time { return clock }

	long := strings.Repeat("where is the library ", 5)
	_, err := f.chat.HandleMessage(ctx, "old", long)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	_, err = f.chat.HandleMessage(ctx, "new", "hello")
	require.NoError(t, err)

	summaries, err := f.chat.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "new", summaries[0].ID)
	assert.Equal(t, string([]rune(strings.TrimSpace(long))[:50])+"...", summaries[1].Title)

	pruned, err := f.chat.PruneIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	require.NoError(t, f.chat.DeleteSession(ctx, "new"))
	summaries, err = f.chat.ListSessions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
