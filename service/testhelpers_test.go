package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/encryption"
	"github.com/TradeStacksInc/UNIvote2/models"
	"github.com/TradeStacksInc/UNIvote2/notification"
	"github.com/TradeStacksInc/UNIvote2/storage"
	"github.com/TradeStacksInc/UNIvote2/wallet"
)

const testWalletAddress = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

func envCrypto() *encryption.CryptoService { return encryption.NewCryptoService() }

func zapNop() *zap.Logger { return zap.NewNop() }

// testEnv wires the core against the in-memory store and fakes.
type testEnv struct {
	store      *storage.MemoryStore
	sender     *notification.FakeSender
	provider   *wallet.MockProvider
	dispatcher *Dispatcher
	resolver   *ElectionStatusResolver
	workflow   *RegistrationWorkflow
	caster     *VoteCaster
	results    *ResultsAggregator
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zap.NewNop()
	store := storage.NewMemoryStore()
	sender := notification.NewFakeSender()
	provider := wallet.NewMockProvider(testWalletAddress)
	crypto := encryption.NewCryptoService()
	metrics := NewMetricsCollector()

	dispatcher := NewDispatcher(sender, 16, log)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	env := &testEnv{
		store:      store,
		sender:     sender,
		provider:   provider,
		dispatcher: dispatcher,
		now:        time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	env.resolver = NewElectionStatusResolver().WithClock(func() time.Time { return env.now })

	binder := wallet.NewBinder(store, crypto, log)
	env.workflow = NewRegistrationWorkflow(store, NewOTPVerifier(), sender, dispatcher, binder, provider, crypto, metrics, log)
	env.results = NewResultsAggregator(store, nil, metrics, log)
	env.caster = NewVoteCaster(store, env.resolver, binder, provider, crypto, dispatcher, env.results, metrics, log)

	return env
}

func validForm() models.RegistrationForm {
	return models.RegistrationForm{
		FullName:        "Ngozi Adeyemi",
		Email:           "ngozi@example.edu",
		ExternalID:      "STU123456",
		Phone:           "+2348012345678",
		Password:        "hunter42",
		ConfirmPassword: "hunter42",
	}
}

// issuedCode reads the code the workflow holds for the session. Tests
// live in the same package precisely so the code never needs to be
// exposed through the API. Returns "" for an unknown session, which no
// submitted code can match.
func (env *testEnv) issuedCode(_ *testing.T, sessionID string) string {
	env.workflow.mu.RLock()
	defer env.workflow.mu.RUnlock()
	session, ok := env.workflow.sessions[sessionID]
	if !ok {
		return ""
	}
	return session.issuedCode
}

// register drives a fresh session through the whole workflow.
func (env *testEnv) register(t *testing.T, form models.RegistrationForm) *models.Identity {
	t.Helper()
	ctx := context.Background()

	session := env.workflow.Begin()
	_, err := env.workflow.SubmitInfo(ctx, session.ID, form)
	require.NoError(t, err)
	_, err = env.workflow.SubmitCode(ctx, session.ID, env.issuedCode(t, session.ID))
	require.NoError(t, err)
	identity, err := env.workflow.Complete(ctx, session.ID, "")
	require.NoError(t, err)
	return identity
}

// seedElection creates an election active around env.now with the
// given candidate names, returning the election and candidates.
func (env *testEnv) seedElection(t *testing.T, names ...string) (*models.Election, []models.Candidate) {
	t.Helper()
	ctx := context.Background()

	election := &models.Election{
		ID:          uuid.New().String(),
		Title:       "Department Representative",
		Description: "Annual representative election",
		StartTime:   env.now.Add(-time.Hour),
		EndTime:     env.now.Add(time.Hour),
	}
	require.NoError(t, env.store.CreateElection(ctx, election))

	candidates := make([]models.Candidate, 0, len(names))
	for _, name := range names {
		candidate := models.Candidate{
			ID:         uuid.New().String(),
			ElectionID: election.ID,
			Name:       name,
		}
		require.NoError(t, env.store.CreateCandidate(ctx, &candidate))
		candidates = append(candidates, candidate)
	}
	return election, candidates
}
