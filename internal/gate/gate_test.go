package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/verigate/internal/cache"
	"github.com/dropDatabas3/verigate/internal/chat"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/payload"
	"github.com/dropDatabas3/verigate/internal/rate"
	"github.com/dropDatabas3/verigate/internal/verify"
)

// --- fakes ---

type fakeCaptcha struct{ ok bool }

func (f *fakeCaptcha) Verify(_ context.Context, _ string) (bool, error) { return f.ok, nil }

type sentMsg struct {
	chatID  int64
	text    string
	replyTo int
	buttons []chat.Button
}

type editedMsg struct {
	chatID    int64
	messageID int
	text      string
	buttons   []chat.Button
}

type fakeChat struct {
	mu sync.Mutex

	sent         []sentMsg
	edited       []editedMsg
	restricted   [][2]int64
	unrestricted [][2]int64

	members     map[int64]chat.Member
	restrictErr error
	nextMsgID   int
}

func (f *fakeChat) Self() (int64, string) { return 1000, "gatebot" }

func (f *fakeChat) SendMessage(_ context.Context, chatID int64, html string, replyTo int, buttons ...chat.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: html, replyTo: replyTo, buttons: buttons})
	return f.nextMsgID, nil
}

func (f *fakeChat) EditMessage(_ context.Context, chatID int64, messageID int, html string, buttons ...chat.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, editedMsg{chatID: chatID, messageID: messageID, text: html, buttons: buttons})
	return nil
}

func (f *fakeChat) DeleteMessage(_ context.Context, _ int64, _ int) error { return nil }

func (f *fakeChat) Restrict(_ context.Context, chatID, userID int64) error {
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restricted = append(f.restricted, [2]int64{chatID, userID})
	return nil
}

func (f *fakeChat) Unrestrict(_ context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unrestricted = append(f.unrestricted, [2]int64{chatID, userID})
	return nil
}

func (f *fakeChat) Member(_ context.Context, _, userID int64) (chat.Member, error) {
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return chat.Member{Status: "member"}, nil
}

func (f *fakeChat) ExportInviteLink(_ context.Context, _ int64) (string, error) {
	return "https://chat.invite/abc", nil
}

type fakeDedup struct {
	matches  map[string]string // uid -> gid
	consumed []string
}

func (f *fakeDedup) Match(uid, chatID string) bool { return f.matches[uid] == chatID }
func (f *fakeDedup) Consume(uid string)            { f.consumed = append(f.consumed, uid) }

// --- harness ---

type fixture struct {
	chat  *fakeChat
	codec *claim.Codec
	dedup *fakeDedup
	gate  *Gate
	base  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Unix(1700000000, 0).UTC()
	f := &fixture{
		base:  base,
		chat:  &fakeChat{members: map[int64]chat.Member{}},
		codec: claim.NewCodec("test-secret", func() time.Time { return base }),
		dedup: &fakeDedup{matches: map[string]string{}},
	}
	machine := verify.New(f.codec, &fakeCaptcha{ok: true}, f.chat, nil, func() time.Time { return base })
	f.gate = New(Deps{
		Chat:     f.chat,
		Claims:   f.codec,
		Resolver: payload.NewResolver(nil),
		Machine:  machine,
		Dedup:    f.dedup,
	}, "https://verify.example/", "sitekey-123")
	return f
}

// parseLink desarma <base>#<token>;<bot>;<sitekey>.
func parseLink(t *testing.T, link string) (token, bot, sitekey string) {
	t.Helper()
	_, frag, ok := strings.Cut(link, "#")
	require.True(t, ok, "link sin fragment: %q", link)
	parts := strings.Split(frag, ";")
	require.Len(t, parts, 3)
	return parts[0], parts[1], parts[2]
}

// --- join handler ---

func TestHandleJoin_IssuesChallenge(t *testing.T) {
	f := newFixture(t)

	f.gate.HandleJoin(context.Background(), JoinEvent{
		ChatID:    555,
		ChatTitle: "My Group",
		MessageID: 5,
		Users:     []JoinedUser{{ID: 42, FirstName: "Ann"}},
	})

	// mute primero
	require.Equal(t, [][2]int64{{555, 42}}, f.chat.restricted)

	// placeholder referenciando el mensaje de join
	require.Len(t, f.chat.sent, 1)
	assert.Equal(t, "Processing...", f.chat.sent[0].text)
	assert.Equal(t, 5, f.chat.sent[0].replyTo)

	// edit del placeholder con el link de challenge
	require.Len(t, f.chat.edited, 1)
	ed := f.chat.edited[0]
	assert.Equal(t, 1, ed.messageID)
	assert.Contains(t, ed.text, "Ann")
	require.Len(t, ed.buttons, 1)

	token, bot, sitekey := parseLink(t, ed.buttons[0].URL)
	assert.Equal(t, "gatebot", bot)
	assert.Equal(t, "sitekey-123", sitekey)

	cl, err := f.codec.Open(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cl.Subject)
	assert.Equal(t, "555", cl.ChatID)
	assert.Equal(t, 1, cl.MessageID) // el id del placeholder viaja en el claim
	assert.False(t, cl.Invite)
	assert.Equal(t, f.base.Add(claim.JoinTTL), cl.ExpiresAt)
}

func TestHandleJoin_SkipsBots(t *testing.T) {
	f := newFixture(t)

	f.gate.HandleJoin(context.Background(), JoinEvent{
		ChatID: 555,
		Users:  []JoinedUser{{ID: 43, FirstName: "other_bot", IsBot: true}},
	})

	assert.Empty(t, f.chat.restricted)
	assert.Empty(t, f.chat.sent)
}

func TestHandleJoin_DedupSkip(t *testing.T) {
	f := newFixture(t)
	f.dedup.matches["42"] = "555"

	f.gate.HandleJoin(context.Background(), JoinEvent{
		ChatID:    555,
		ChatTitle: "My Group",
		Users:     []JoinedUser{{ID: 42, FirstName: "Ann"}},
	})

	// invitation-verified: ni mute ni challenge, sólo el consume
	assert.Empty(t, f.chat.restricted)
	assert.Empty(t, f.chat.sent)
	assert.Equal(t, []string{"42"}, f.dedup.consumed)
}

func TestHandleJoin_DedupOtherChatStillChallenged(t *testing.T) {
	f := newFixture(t)
	f.dedup.matches["42"] = "666" // verificado hacia OTRO chat

	f.gate.HandleJoin(context.Background(), JoinEvent{
		ChatID:    555,
		ChatTitle: "My Group",
		Users:     []JoinedUser{{ID: 42, FirstName: "Ann"}},
	})

	assert.Len(t, f.chat.restricted, 1)
	assert.Empty(t, f.dedup.consumed)
}

func TestHandleJoin_RestrictFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.chat.restrictErr = assert.AnError

	f.gate.HandleJoin(context.Background(), JoinEvent{
		ChatID: 555,
		Users:  []JoinedUser{{ID: 42, FirstName: "Ann"}},
	})

	// sin mute no se mintea nada
	assert.Empty(t, f.chat.sent)
	assert.Empty(t, f.chat.edited)
}

// --- /verify y /start ---

func TestHandleVerify_EndToEnd(t *testing.T) {
	f := newFixture(t)

	token, err := f.codec.Mint(claim.Claim{
		Subject: "42", ChatID: "555", ChatName: "My%20Group", MessageID: 9,
	}, claim.JoinTTL)
	require.NoError(t, err)

	env, err := json.Marshal(map[string]string{"claim": token, "proof": "proof"})
	require.NoError(t, err)

	f.gate.HandleVerify(context.Background(), Command{
		Name:     "verify",
		Args:     base64.StdEncoding.EncodeToString(env),
		ChatID:   42,
		ChatType: ChatPrivate,
		UserID:   42,
	})

	assert.Equal(t, [][2]int64{{555, 42}}, f.chat.unrestricted)
}

type fakeBlobs struct{ blobs map[string][]byte }

func (f *fakeBlobs) Fetch(_ context.Context, id string) ([]byte, error) {
	b, ok := f.blobs[id]
	if !ok {
		return nil, assert.AnError
	}
	return b, nil
}

func TestHandleStart_ReferenceMode(t *testing.T) {
	f := newFixture(t)

	token, err := f.codec.Mint(claim.Claim{
		Subject: "42", ChatID: "555", ChatName: "My%20Group", MessageID: 9,
	}, claim.JoinTTL)
	require.NoError(t, err)

	env, err := json.Marshal(map[string]string{"claim": token, "proof": "proof"})
	require.NoError(t, err)
	blob, err := payload.Encrypt(payload.DeriveKey("42"), env)
	require.NoError(t, err)

	f.gate.deps.Resolver = payload.NewResolver(&fakeBlobs{
		blobs: map[string][]byte{"ref123": []byte(blob)},
	})

	f.gate.HandleStart(context.Background(), Command{
		Name: "start", Args: "ref123", ChatID: 42, ChatType: ChatPrivate, UserID: 42,
	})

	assert.Equal(t, [][2]int64{{555, 42}}, f.chat.unrestricted)
}

func TestHandleStart_BlobUnavailable(t *testing.T) {
	f := newFixture(t)
	f.gate.deps.Resolver = payload.NewResolver(&fakeBlobs{})

	f.gate.HandleStart(context.Background(), Command{
		Name: "start", Args: "missing", ChatID: 42, ChatType: ChatPrivate, UserID: 42,
	})

	require.Len(t, f.chat.sent, 1)
	assert.Contains(t, f.chat.sent[0].text, "verification servers")
	assert.Empty(t, f.chat.unrestricted)
}

func TestHandleVerify_IgnoredOutsidePrivate(t *testing.T) {
	f := newFixture(t)

	f.gate.HandleVerify(context.Background(), Command{
		Name: "verify", Args: "whatever", ChatID: 555, ChatType: ChatSupergroup, UserID: 42,
	})

	assert.Empty(t, f.chat.sent)
	assert.Empty(t, f.chat.unrestricted)
}

func TestHandleVerify_NoArgsGetsHelp(t *testing.T) {
	f := newFixture(t)

	f.gate.HandleVerify(context.Background(), Command{
		Name: "verify", ChatID: 42, ChatType: ChatPrivate, UserID: 42,
	})

	require.Len(t, f.chat.sent, 1)
	assert.Equal(t, helpText, f.chat.sent[0].text)
}

func TestHandleVerify_MalformedPayloadReply(t *testing.T) {
	f := newFixture(t)

	f.gate.HandleVerify(context.Background(), Command{
		Name: "verify", Args: "!!not-base64!!", ChatID: 42, ChatType: ChatPrivate, UserID: 42,
	})

	require.Len(t, f.chat.sent, 1)
	assert.Contains(t, f.chat.sent[0].text, "Invalid data")
	assert.Empty(t, f.chat.unrestricted)
}

func TestHandleVerify_RateLimited(t *testing.T) {
	f := newFixture(t)

	now := f.base
	f.gate.deps.Limiter = rate.New(cache.NewMemory(0), 10*time.Second, 30*time.Second,
		func() time.Time { return now })

	cmd := Command{Name: "verify", ChatID: 42, ChatType: ChatPrivate, UserID: 42}

	// primer request pasa (recibe el help)
	f.gate.HandleVerify(context.Background(), cmd)
	require.Len(t, f.chat.sent, 1)

	// martillazo inmediato: descarte silencioso
	now = now.Add(2 * time.Second)
	f.gate.HandleVerify(context.Background(), cmd)
	assert.Len(t, f.chat.sent, 1)

	// dentro de la ventana de aviso: descarte con notice
	now = now.Add(15 * time.Second)
	f.gate.HandleVerify(context.Background(), cmd)
	require.Len(t, f.chat.sent, 2)
	assert.Contains(t, f.chat.sent[1].text, "Too many requests!")
}

// --- /invite + callback ---

func TestHandleInvite_NoPermission(t *testing.T) {
	f := newFixture(t)
	// UserID 42 no está en members => "member" raso

	f.gate.HandleInvite(context.Background(), Command{
		Name: "invite", Args: "7", ChatID: 555, ChatType: ChatSupergroup, UserID: 42, MessageID: 3,
	})

	require.Len(t, f.chat.sent, 1)
	assert.Equal(t, "You have no permission to invite users.", f.chat.sent[0].text)
}

func TestHandleInvite_AdminWithoutInviteRight(t *testing.T) {
	f := newFixture(t)
	f.chat.members[42] = chat.Member{Status: chat.StatusAdmin, CanInvite: false}

	f.gate.HandleInvite(context.Background(), Command{
		Name: "invite", Args: "7", ChatID: 555, ChatType: ChatSupergroup, UserID: 42,
	})

	require.Len(t, f.chat.sent, 1)
	assert.Equal(t, "You have no permission to invite users.", f.chat.sent[0].text)
}

func TestHandleInvite_BotWithoutInviteRight(t *testing.T) {
	f := newFixture(t)
	f.chat.members[42] = chat.Member{Status: chat.StatusCreator}
	f.chat.members[1000] = chat.Member{Status: chat.StatusAdmin, CanInvite: false}

	f.gate.HandleInvite(context.Background(), Command{
		Name: "invite", Args: "7", ChatID: 555, ChatType: ChatSupergroup, UserID: 42,
	})

	require.Len(t, f.chat.sent, 1)
	assert.Equal(t, "I have no permission to invite users.", f.chat.sent[0].text)
}

func TestHandleInvite_BadDaysGetsUsage(t *testing.T) {
	f := newFixture(t)
	f.chat.members[42] = chat.Member{Status: chat.StatusCreator}
	f.chat.members[1000] = chat.Member{Status: chat.StatusAdmin, CanInvite: true}

	for _, args := range []string{"", "0", "31", "x"} {
		f.chat.sent = nil
		f.gate.HandleInvite(context.Background(), Command{
			Name: "invite", Args: args, ChatID: 555, ChatType: ChatSupergroup, UserID: 42,
		})
		require.Len(t, f.chat.sent, 1, "args=%q", args)
		assert.Equal(t, inviteUsage, f.chat.sent[0].text, "args=%q", args)
	}
}

func TestHandleInvite_Confirmation(t *testing.T) {
	f := newFixture(t)
	f.chat.members[42] = chat.Member{Status: chat.StatusCreator}
	f.chat.members[1000] = chat.Member{Status: chat.StatusAdmin, CanInvite: true}

	f.gate.HandleInvite(context.Background(), Command{
		Name: "invite", Args: "7", ChatID: 555, ChatType: ChatSupergroup, UserID: 42, MessageID: 3,
	})

	// sólo la confirmación; el mint recién ocurre en el callback
	require.Len(t, f.chat.sent, 1)
	msg := f.chat.sent[0]
	assert.Contains(t, msg.text, "UNABLE TO REVOKE")
	require.Len(t, msg.buttons, 1)

	var p callbackPayload
	require.NoError(t, json.Unmarshal([]byte(msg.buttons[0].Data), &p))
	assert.Equal(t, callbackPayload{Action: "invite", Expire: 7}, p)
}

func TestHandleCallback_MintsStandingClaim(t *testing.T) {
	f := newFixture(t)
	f.chat.members[42] = chat.Member{Status: chat.StatusCreator}

	f.gate.HandleCallback(context.Background(), Callback{
		ChatID:    555,
		ChatTitle: "My Group",
		MessageID: 10,
		UserID:    42,
		Data:      `{"action":"invite","expire":7}`,
	})

	require.Len(t, f.chat.edited, 1)
	ed := f.chat.edited[0]
	assert.Equal(t, 10, ed.messageID)
	assert.Contains(t, ed.text, "Your invite link")

	// el link viaja en el texto, entre <code>…</code>
	start := strings.Index(ed.text, "<code>")
	end := strings.Index(ed.text, "</code>")
	require.True(t, start >= 0 && end > start)
	token, _, _ := parseLink(t, ed.text[start+len("<code>"):end])

	cl, err := f.codec.Open(token)
	require.NoError(t, err)
	assert.True(t, cl.Invite)
	assert.Equal(t, claim.AnyBearer, cl.Subject)
	assert.Equal(t, "555", cl.ChatID)
	assert.Equal(t, f.base.Add(7*24*time.Hour), cl.ExpiresAt)
}

func TestHandleCallback_NonAdminIgnored(t *testing.T) {
	f := newFixture(t)

	f.gate.HandleCallback(context.Background(), Callback{
		ChatID: 555, MessageID: 10, UserID: 42, Data: `{"action":"invite","expire":7}`,
	})

	// silencio total: ni edit ni reply
	assert.Empty(t, f.chat.edited)
	assert.Empty(t, f.chat.sent)
}

func TestHandleCallback_GarbageDataIgnored(t *testing.T) {
	f := newFixture(t)
	f.chat.members[42] = chat.Member{Status: chat.StatusCreator}

	for _, data := range []string{"", "not json", `{"action":"other","expire":7}`, `{"action":"invite","expire":99}`} {
		f.gate.HandleCallback(context.Background(), Callback{
			ChatID: 555, MessageID: 10, UserID: 42, Data: data,
		})
	}
	assert.Empty(t, f.chat.edited)
}
