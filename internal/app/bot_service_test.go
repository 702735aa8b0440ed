package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Meru-dog/study-group-bot/internal/domain/attendance"
	"github.com/Meru-dog/study-group-bot/internal/domain/occurrence"
	"github.com/Meru-dog/study-group-bot/internal/infra/state"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock pins "now" for deterministic occurrence keys.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// mondayMorning is 2024-06-03 10:00 JST, a meeting day inside the window.
var mondayMorning = time.Date(2024, 6, 3, 10, 0, 0, 0, occurrence.JST)

// fakeChat records posted messages and serves canned display names.
type fakeChat struct {
	posts     []string
	channels  []string
	names     map[string]string
	nameCalls int
	nextTS    int
}

func (f *fakeChat) PostMessage(channelID, text string) (string, error) {
	f.posts = append(f.posts, text)
	f.channels = append(f.channels, channelID)
	f.nextTS++
	return fmt.Sprintf("%d.000000", 1000+f.nextTS), nil
}

func (f *fakeChat) DisplayName(userID string) (string, error) {
	f.nameCalls++
	if name, ok := f.names[userID]; ok {
		return name, nil
	}
	return userID, nil
}

// fakeRepo emulates the sheet's upsert semantics in memory and records
// every speaker-flag push.
type fakeRepo struct {
	rows       []attendance.Record
	flagPushes [][]string
	calls      int
}

func (f *fakeRepo) UpsertAttendance(_ context.Context, date, userID, participant string, status attendance.Status) error {
	f.calls++
	for i, rec := range f.rows {
		if rec.Date == date && rec.UserID == userID {
			f.rows[i].Participant = participant
			f.rows[i].Status = status
			return nil
		}
	}
	f.rows = append(f.rows, attendance.Record{Date: date, Participant: participant, Status: status, UserID: userID})
	return nil
}

func (f *fakeRepo) UpdateSpeakerFlags(_ context.Context, date string, speakerIDs []string) error {
	f.calls++
	speakers := make(map[string]bool, len(speakerIDs))
	for _, id := range speakerIDs {
		speakers[id] = true
	}
	for i, rec := range f.rows {
		if rec.Date == date {
			f.rows[i].Speaker = speakers[rec.UserID]
		}
	}
	push := append([]string(nil), speakerIDs...)
	f.flagPushes = append(f.flagPushes, push)
	return nil
}

func (f *fakeRepo) UpdateTopic(_ context.Context, date, userID, topic string) error {
	f.calls++
	for i, rec := range f.rows {
		if rec.Date == date && rec.UserID == userID {
			f.rows[i].Topic = topic
		}
	}
	return nil
}

func (f *fakeRepo) ListByDate(_ context.Context, date string) ([]attendance.Record, error) {
	f.calls++
	var out []attendance.Record
	for _, rec := range f.rows {
		if rec.Date == date {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*BotService, *fakeChat, *fakeRepo, occurrence.Store) {
	t.Helper()
	store, err := state.NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	chatClient := &fakeChat{names: map[string]string{"U1": "Tanaka", "U2": "Suzuki", "U3": "Sato"}}
	repo := &fakeRepo{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := NewBotService(store, repo, chatClient, fixedClock{mondayMorning}, logrus.NewEntry(log), "C123", "https://meet.example/xyz")
	return svc, chatClient, repo, store
}

func reaction(user, name, eventTS, itemTS string) ReactionEvent {
	return ReactionEvent{
		UserID:         user,
		Reaction:       name,
		EventTimestamp: eventTS,
		ItemType:       "message",
		ItemChannel:    "C123",
		ItemTimestamp:  itemTS,
	}
}

func TestPostDeclaration_RegistersPrompt(t *testing.T) {
	svc, chatClient, _, store := newTestService(t)
	require.NoError(t, svc.PostDeclaration())

	require.Len(t, chatClient.posts, 1)
	assert.Contains(t, chatClient.posts[0], "参加宣言")
	assert.Contains(t, chatClient.posts[0], "https://meet.example/xyz")

	ref, ok := store.Prompt("2024/06/03")
	require.True(t, ok)
	assert.Equal(t, "C123", ref.Channel)
	assert.NotEmpty(t, ref.Timestamp)
}

func TestHandleReaction_UnknownMessageIgnored(t *testing.T) {
	svc, chatClient, repo, store := newTestService(t)

	svc.HandleReaction(context.Background(), reaction("U1", "white_check_mark", "1.0", "9999.0"), true)

	assert.Zero(t, repo.calls, "no gateway calls for an unrelated message")
	assert.Zero(t, chatClient.nameCalls)
	assert.Empty(t, store.Speakers("2024/06/03"))
}

func TestHandleReaction_UnrecognizedGlyphIgnored(t *testing.T) {
	svc, _, repo, _ := newTestService(t)
	require.NoError(t, svc.PostDeclaration())
	ref, _ := svc.store.Prompt("2024/06/03")

	svc.HandleReaction(context.Background(), reaction("U1", "thumbsup", "1.0", ref.Timestamp), true)
	assert.Zero(t, repo.calls)
}

func TestHandleReaction_AttendanceUpsertsAndResyncs(t *testing.T) {
	svc, _, repo, _ := newTestService(t)
	require.NoError(t, svc.PostDeclaration())
	ref, _ := svc.store.Prompt("2024/06/03")

	svc.HandleReaction(context.Background(), reaction("U1", "white_check_mark", "1.0", ref.Timestamp), true)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, "2024/06/03", repo.rows[0].Date)
	assert.Equal(t, "Tanaka", repo.rows[0].Participant)
	assert.Equal(t, attendance.StatusInPerson, repo.rows[0].Status)
	assert.Equal(t, "U1", repo.rows[0].UserID)
	// Attendance is followed by a full speaker-flag resync.
	require.Len(t, repo.flagPushes, 1)
	assert.Empty(t, repo.flagPushes[0])
}

func TestHandleReaction_AttendanceRemovalIgnored(t *testing.T) {
	svc, _, repo, _ := newTestService(t)
	require.NoError(t, svc.PostDeclaration())
	ref, _ := svc.store.Prompt("2024/06/03")

	svc.HandleReaction(context.Background(), reaction("U1", "white_check_mark", "1.0", ref.Timestamp), false)
	assert.Zero(t, repo.calls, "removing an attendance reaction has no effect")
}

func TestUpsertTwice_SingleRowLatestStatus(t *testing.T) {
	svc, _, repo, _ := newTestService(t)
	require.NoError(t, svc.PostDeclaration())
	ref, _ := svc.store.Prompt("2024/06/03")

	svc.HandleReaction(context.Background(), reaction("U1", "white_check_mark", "1.0", ref.Timestamp), true)
	svc.HandleReaction(context.Background(), reaction("U1", "computer", "2.0", ref.Timestamp), true)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, attendance.StatusRemote, repo.rows[0].Status)
}

func TestDisplayNameCache(t *testing.T) {
	svc, chatClient, _, _ := newTestService(t)
	require.NoError(t, svc.PostDeclaration())
	ref, _ := svc.store.Prompt("2024/06/03")

	svc.HandleReaction(context.Background(), reaction("U1", "white_check_mark", "1.0", ref.Timestamp), true)
	svc.HandleReaction(context.Background(), reaction("U1", "computer", "2.0", ref.Timestamp), true)
	assert.Equal(t, 1, chatClient.nameCalls, "second lookup must hit the cache")
}

// The end-to-end scenario: attendance, three speaker sign-ups capped at two,
// then a withdrawal.
func TestScenario_SpeakerRosterReconciliation(t *testing.T) {
	svc, _, repo, store := newTestService(t)
	require.NoError(t, svc.PostDeclaration())
	ref, _ := store.Prompt("2024/06/03")
	ctx := context.Background()

	svc.HandleReaction(ctx, reaction("U1", "white_check_mark", "1.0", ref.Timestamp), true)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, attendance.StatusInPerson, repo.rows[0].Status)

	svc.HandleReaction(ctx, reaction("U1", "microphone", "10.0", ref.Timestamp), true)
	svc.HandleReaction(ctx, reaction("U2", "microphone", "20.0", ref.Timestamp), true)
	svc.HandleReaction(ctx, reaction("U3", "microphone", "30.0", ref.Timestamp), true)

	assert.Equal(t, []string{"U1", "U2"}, store.Speakers("2024/06/03"), "U3 exceeds the roster capacity")
	require.NotEmpty(t, repo.flagPushes)
	assert.Equal(t, []string{"U1", "U2"}, repo.flagPushes[len(repo.flagPushes)-1])

	svc.HandleReaction(ctx, reaction("U1", "microphone", "40.0", ref.Timestamp), false)
	assert.Equal(t, []string{"U2", "U3"}, store.Speakers("2024/06/03"))
	assert.Equal(t, []string{"U2", "U3"}, repo.flagPushes[len(repo.flagPushes)-1])
}

func TestEnsureDeclarationPosted(t *testing.T) {
	t.Run("posts when window open and nothing registered", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		require.NoError(t, svc.EnsureDeclarationPosted())
		assert.Len(t, chatClient.posts, 1)
	})

	t.Run("never re-posts once registered", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		require.NoError(t, svc.PostDeclaration())
		for i := 0; i < 5; i++ {
			require.NoError(t, svc.EnsureDeclarationPosted())
		}
		assert.Len(t, chatClient.posts, 1, "self-healing check must be idempotent")
	})

	t.Run("skips before the window opens", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		svc.clock = fixedClock{time.Date(2024, 6, 3, 8, 59, 0, 0, occurrence.JST)}
		require.NoError(t, svc.EnsureDeclarationPosted())
		assert.Empty(t, chatClient.posts)
	})

	t.Run("skips on non-meeting days", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		svc.clock = fixedClock{time.Date(2024, 6, 4, 10, 0, 0, 0, occurrence.JST)} // Tuesday
		require.NoError(t, svc.EnsureDeclarationPosted())
		assert.Empty(t, chatClient.posts)
	})
}

func TestHandleMessage_ManualCommand(t *testing.T) {
	t.Run("normalized command posts declaration and confirmation", func(t *testing.T) {
		svc, chatClient, _, store := newTestService(t)
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "　参加宣言投稿　"})

		require.Len(t, chatClient.posts, 2)
		assert.Contains(t, chatClient.posts[0], "参加宣言")
		assert.Equal(t, "参加宣言投稿を実行しました。", chatClient.posts[1])
		_, ok := store.Prompt("2024/06/03")
		assert.True(t, ok)
	})

	t.Run("wrong channel ignored", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C999", UserID: "U1", Text: "参加宣言投稿"})
		assert.Empty(t, chatClient.posts)
	})

	t.Run("non-exact text ignored", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "参加宣言投稿お願いします"})
		assert.Empty(t, chatClient.posts)
	})

	t.Run("subtype messages ignored", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		svc.HandleMessage(context.Background(), MessageEvent{SubType: "bot_message", Channel: "C123", Text: "参加宣言投稿"})
		assert.Empty(t, chatClient.posts)
	})

	t.Run("repeated commands repeat the prompt", func(t *testing.T) {
		// Intentionally no already-posted guard on the manual path.
		svc, chatClient, _, _ := newTestService(t)
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "参加宣言投稿"})
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "参加宣言投稿"})
		assert.Len(t, chatClient.posts, 4)
	})
}

func TestHandleMessage_TopicSubmission(t *testing.T) {
	setup := func(t *testing.T) (*BotService, *fakeRepo, string) {
		svc, _, repo, store := newTestService(t)
		require.NoError(t, svc.PostDeclaration())
		ref, _ := store.Prompt("2024/06/03")
		ctx := context.Background()
		svc.HandleReaction(ctx, reaction("U1", "white_check_mark", "1.0", ref.Timestamp), true)
		svc.HandleReaction(ctx, reaction("U1", "microphone", "10.0", ref.Timestamp), true)
		return svc, repo, ref.Timestamp
	}

	t.Run("accepted from roster member", func(t *testing.T) {
		svc, repo, threadTS := setup(t)
		svc.HandleMessage(context.Background(), MessageEvent{
			Channel: "C123", UserID: "U1", Text: "テーマ：Goの並行処理", ThreadTimestamp: threadTS,
		})
		require.Len(t, repo.rows, 1)
		assert.Equal(t, "Goの並行処理", repo.rows[0].Topic)
	})

	t.Run("last write wins", func(t *testing.T) {
		svc, repo, threadTS := setup(t)
		ctx := context.Background()
		svc.HandleMessage(ctx, MessageEvent{Channel: "C123", UserID: "U1", Text: "テーマ：最初の案", ThreadTimestamp: threadTS})
		svc.HandleMessage(ctx, MessageEvent{Channel: "C123", UserID: "U1", Text: "テーマ：改訂版 ", ThreadTimestamp: threadTS})
		assert.Equal(t, "改訂版", repo.rows[0].Topic)
	})

	t.Run("rejected from non-roster participant", func(t *testing.T) {
		svc, repo, threadTS := setup(t)
		svc.HandleMessage(context.Background(), MessageEvent{
			Channel: "C123", UserID: "U9", Text: "テーマ：勝手な発表", ThreadTimestamp: threadTS,
		})
		for _, rec := range repo.rows {
			assert.Empty(t, rec.Topic)
		}
	})

	t.Run("rejected after falling off the roster", func(t *testing.T) {
		svc, repo, threadTS := setup(t)
		ctx := context.Background()
		// U2 and U3 sign up, then U1 withdraws: U1 was active earlier today
		// but is no longer in the top two at submission time.
		svc.HandleReaction(ctx, reaction("U2", "microphone", "20.0", threadTS), true)
		svc.HandleReaction(ctx, reaction("U3", "microphone", "30.0", threadTS), true)
		svc.HandleReaction(ctx, reaction("U1", "microphone", "40.0", threadTS), false)

		svc.HandleMessage(ctx, MessageEvent{Channel: "C123", UserID: "U1", Text: "テーマ：遅すぎた提出", ThreadTimestamp: threadTS})
		assert.Empty(t, repo.rows[0].Topic)
	})

	t.Run("missing prefix ignored", func(t *testing.T) {
		svc, repo, threadTS := setup(t)
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "今日のテーマはGoです", ThreadTimestamp: threadTS})
		assert.Empty(t, repo.rows[0].Topic)
	})

	t.Run("empty topic ignored", func(t *testing.T) {
		svc, repo, threadTS := setup(t)
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "テーマ：  ", ThreadTimestamp: threadTS})
		assert.Empty(t, repo.rows[0].Topic)
	})

	t.Run("unknown thread ignored", func(t *testing.T) {
		svc, repo, _ := setup(t)
		before := repo.calls
		svc.HandleMessage(context.Background(), MessageEvent{Channel: "C123", UserID: "U1", Text: "テーマ：どこへ", ThreadTimestamp: "9999.0"})
		assert.Equal(t, before, repo.calls)
	})
}

func TestPostSummary(t *testing.T) {
	t.Run("no records means no message", func(t *testing.T) {
		svc, chatClient, _, _ := newTestService(t)
		require.NoError(t, svc.PostSummary(context.Background()))
		assert.Empty(t, chatClient.posts)
	})

	t.Run("groups by status and lists speakers", func(t *testing.T) {
		svc, chatClient, repo, _ := newTestService(t)
		repo.rows = []attendance.Record{
			{Date: "2024/06/03", Participant: "Tanaka", Status: attendance.StatusInPerson, Speaker: true, Topic: "Goの並行処理", UserID: "U1"},
			{Date: "2024/06/03", Participant: "Suzuki", Status: attendance.StatusRemote, Speaker: true, UserID: "U2"},
			{Date: "2024/06/03", Participant: "Sato", Status: attendance.StatusAbsent, UserID: "U3"},
		}
		require.NoError(t, svc.PostSummary(context.Background()))

		require.Len(t, chatClient.posts, 1)
		text := chatClient.posts[0]
		assert.Contains(t, text, "対面: Tanaka")
		assert.Contains(t, text, "オンライン: Suzuki")
		assert.Contains(t, text, "欠席: Sato")
		assert.Contains(t, text, "- Tanaka（対面） テーマ: Goの並行処理")
		assert.Contains(t, text, "- Suzuki（オンライン） テーマ: 未入力")
	})
}

func TestPostStart(t *testing.T) {
	svc, chatClient, repo, _ := newTestService(t)
	repo.rows = []attendance.Record{
		{Date: "2024/06/03", Participant: "Tanaka", Status: attendance.StatusInPerson, Speaker: true, Topic: "Goの並行処理", UserID: "U1"},
	}
	require.NoError(t, svc.PostStart(context.Background()))

	require.Len(t, chatClient.posts, 1)
	assert.Contains(t, chatClient.posts[0], "勉強会を開始します")
	assert.Contains(t, chatClient.posts[0], "- Tanaka（対面） テーマ: Goの並行処理")
}
