package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
	"github.com/Houeta/listing-monitor/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
)

// fakeContext implements the parts of telebot.Context the handlers use.
type fakeContext struct {
	telebot.Context

	chat    *telebot.Chat
	sent    []interface{}
	sendErr error
}

func (f *fakeContext) Chat() *telebot.Chat     { return f.chat }
func (f *fakeContext) Sender() *telebot.User   { return &telebot.User{ID: f.chat.ID, Username: "tester"} }
func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return f.sendErr
}

type statusFunc func(ctx context.Context) (*models.ScanRun, error)

func (f statusFunc) Status(ctx context.Context) (*models.ScanRun, error) { return f(ctx) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStart(t *testing.T) {
	t.Parallel()

	mockBot := mocks.NewAPI(t)
	mockBot.On("Start").Once()

	logger := slog.Default()
	testBot := Bot{bot: mockBot, log: logger}

	testBot.Start()

	mockBot.AssertExpectations(t)
}

func TestStop(t *testing.T) {
	t.Parallel()

	mockBot := mocks.NewAPI(t)
	mockBot.On("Stop").Once()

	logger := slog.Default()
	testBot := Bot{bot: mockBot, log: logger}

	testBot.Stop()

	mockBot.AssertExpectations(t)
}

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	mockBot := mocks.NewAPI(t)

	mockBot.On("Handle", "/start", mock.AnythingOfType("telebot.HandlerFunc")).Once()
	mockBot.On("Handle", "/stop", mock.AnythingOfType("telebot.HandlerFunc")).Once()
	mockBot.On("Handle", "/status", mock.AnythingOfType("telebot.HandlerFunc")).Once()

	logger := slog.Default()
	testBot := Bot{bot: mockBot, log: logger}

	testBot.registerRoutes()

	mockBot.AssertExpectations(t)
}

func TestStartHandler(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		repoErr   error
		wantReply string
	}{
		{name: "Subscribed", wantReply: "Subscribed."},
		{name: "Repository failure", repoErr: errors.New("db down"), wantReply: "subscription failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mRepo := mocks.NewSubscriptionRepository(t)
			mRepo.On("SubscribeChat", mock.Anything, int64(42)).Return(tc.repoErr).Once()

			testBot := Bot{log: discardLogger(), repo: mRepo}
			c := &fakeContext{chat: &telebot.Chat{ID: 42}}

			require.NoError(t, testBot.startHandler(c))
			require.Len(t, c.sent, 1)
			assert.Contains(t, c.sent[0], tc.wantReply)
		})
	}
}

func TestStopHandler(t *testing.T) {
	t.Parallel()

	mRepo := mocks.NewSubscriptionRepository(t)
	mRepo.On("UnsubscribeChat", mock.Anything, int64(7)).Return(nil).Once()

	testBot := Bot{log: discardLogger(), repo: mRepo}
	c := &fakeContext{chat: &telebot.Chat{ID: 7}, sendErr: errors.New("blocked by user")}

	err := testBot.stopHandler(c)

	require.ErrorContains(t, err, "failed to send goodbye message")
	assert.Contains(t, c.sent[0], "Unsubscribed.")
}

func TestStatusHandler(t *testing.T) {
	t.Parallel()

	finished := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	msg := "scan cancelled"

	testCases := []struct {
		name      string
		status    statusFunc
		wantParts []string
	}{
		{
			name: "Latest run",
			status: func(context.Context) (*models.ScanRun, error) {
				return &models.ScanRun{
					ID: "s1", Target: "all", Status: models.ScanFailed,
					StartedAt: finished.Add(-5 * time.Minute), CompletedAt: &finished,
					PagesRequested: 3, PagesFetched: 1, FetchErrors: 2, Error: &msg,
				}, nil
			},
			wantParts: []string{"Scan s1: failed", "Pages: 1/3 fetched, 2 failed", "Error: scan cancelled"},
		},
		{
			name: "No scans yet",
			status: func(context.Context) (*models.ScanRun, error) {
				return nil, repository.ErrScanNotFound
			},
			wantParts: []string{"No scan has run yet."},
		},
		{
			name: "Status unavailable",
			status: func(context.Context) (*models.ScanRun, error) {
				return nil, errors.New("db down")
			},
			wantParts: []string{"unavailable"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			testBot := Bot{log: discardLogger(), status: tc.status}
			c := &fakeContext{chat: &telebot.Chat{ID: 1}}

			require.NoError(t, testBot.statusHandler(c))
			require.Len(t, c.sent, 1)
			for _, part := range tc.wantParts {
				assert.Contains(t, c.sent[0], part)
			}
		})
	}
}

func changeSet() []models.ChangeRecord {
	price := func(v float64) *float64 { return &v }
	return []models.ChangeRecord{
		{
			ListingID: "A", ChangeType: models.ChangePriceChanged, Category: models.CategoryMedium,
			Before: &models.Listing{ID: "A", Title: "Bakery", AskingPrice: price(100000)},
			After:  &models.Listing{ID: "A", Title: "Bakery", AskingPrice: price(120000), URL: "https://m.example/a"},
		},
		{
			ListingID: "B", ChangeType: models.ChangeNew, Category: models.CategoryHigh,
			After: &models.Listing{ID: "B", Title: "Agency", AskingPrice: price(500000)},
		},
	}
}

func TestDeliver(t *testing.T) {
	t.Parallel()

	mRepo := mocks.NewSubscriptionRepository(t)
	mRepo.On("GetSubscribedChats", mock.Anything).Return([]int64{1, 2}, nil).Once()

	mockBot := mocks.NewAPI(t)
	mockBot.On("Send", &telebot.Chat{ID: 1}, mock.AnythingOfType("string"), telebot.NoPreview).
		Return(&telebot.Message{}, nil).Once()
	mockBot.On("Send", &telebot.Chat{ID: 2}, mock.AnythingOfType("string"), telebot.NoPreview).
		Return(nil, errors.New("chat not found")).Once()

	testBot := Bot{bot: mockBot, log: discardLogger(), repo: mRepo, maxItems: defaultMaxItems}

	err := testBot.Deliver(t.Context(), changeSet())

	require.ErrorContains(t, err, "chat 2: chat not found")
	assert.NotContains(t, err.Error(), "chat 1")
}

func TestDeliver_NothingToSend(t *testing.T) {
	t.Parallel()

	t.Run("Empty change set", func(t *testing.T) {
		t.Parallel()

		testBot := Bot{bot: mocks.NewAPI(t), log: discardLogger(), repo: mocks.NewSubscriptionRepository(t)}

		require.NoError(t, testBot.Deliver(t.Context(), nil))
	})

	t.Run("No subscribers", func(t *testing.T) {
		t.Parallel()

		mRepo := mocks.NewSubscriptionRepository(t)
		mRepo.On("GetSubscribedChats", mock.Anything).Return(nil, nil).Once()
		testBot := Bot{bot: mocks.NewAPI(t), log: discardLogger(), repo: mRepo}

		require.NoError(t, testBot.Deliver(t.Context(), changeSet()))
	})

	t.Run("Subscribers unavailable", func(t *testing.T) {
		t.Parallel()

		mRepo := mocks.NewSubscriptionRepository(t)
		mRepo.On("GetSubscribedChats", mock.Anything).Return(nil, errors.New("db down")).Once()
		testBot := Bot{bot: mocks.NewAPI(t), log: discardLogger(), repo: mRepo}

		require.ErrorContains(t, testBot.Deliver(t.Context(), changeSet()), "failed to get subscribed chats")
	})
}

func TestFormatDigest(t *testing.T) {
	t.Parallel()

	digest := FormatDigest(changeSet(), 0)

	lines := strings.Split(digest, "\n")
	assert.Equal(t, "2 listing change(s) detected", lines[0])
	assert.Equal(t, "[HIGH] new: Agency (B), price 500000", lines[2], "higher category first")
	assert.Equal(t, "[MEDIUM] priceChanged: Bakery (A), price 100000 -> 120000", lines[3])
	assert.Equal(t, "https://m.example/a", lines[4])

	truncated := FormatDigest(changeSet(), 1)
	assert.Contains(t, truncated, "...and 1 more")
	assert.NotContains(t, truncated, "Bakery")
}
