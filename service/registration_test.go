package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advanceToWallet drives a fresh session with the default form up to
// the wallet stage.
func (env *testEnv) advanceToWallet(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	session := env.workflow.Begin()
	_, err := env.workflow.SubmitInfo(ctx, session.ID, validForm())
	require.NoError(t, err)
	_, err = env.workflow.SubmitCode(ctx, session.ID, env.issuedCode(t, session.ID))
	require.NoError(t, err)
	return session.ID
}

func TestRegistrationHappyPath(t *testing.T) {
	env := newTestEnv(t)

	identity := env.register(t, validForm())

	assert.True(t, identity.Verified)
	assert.NotEmpty(t, identity.ID)
	assert.NotEmpty(t, identity.WalletAddress)
	assert.Equal(t, "STU123456", identity.ExternalID)

	// Session is destroyed once Complete is reached.
	env.workflow.mu.RLock()
	assert.Empty(t, env.workflow.sessions)
	env.workflow.mu.RUnlock()

	// The stored record matches what was returned.
	stored, err := env.store.GetIdentity(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Equal(t, identity.WalletAddress, stored.WalletAddress)
}

func TestRegistrationCompleteConnectsViaProvider(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.advanceToWallet(t)

	identity, err := env.workflow.Complete(context.Background(), sessionID, "")
	require.NoError(t, err)

	assert.Equal(t, 1, env.provider.Calls())
	assert.Equal(t, testWalletAddress, identity.WalletAddress)
}

func TestRegistrationCompleteApprovedAddressSkipsProvider(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.advanceToWallet(t)

	lower := strings.ToLower(testWalletAddress)
	identity, err := env.workflow.Complete(context.Background(), sessionID, lower)
	require.NoError(t, err)

	assert.Zero(t, env.provider.Calls())
	assert.Equal(t, testWalletAddress, identity.WalletAddress, "stored address is checksummed")
}

func TestRegistrationCompleteWalletDeclinedThenRetried(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.advanceToWallet(t)
	env.provider.Decline(true)

	_, err := env.workflow.Complete(context.Background(), sessionID, "")
	assert.ErrorIs(t, err, ErrWalletDeclined)

	// The session survives the refusal so the user can try again.
	view, err := env.workflow.Session(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingWallet, view.Stage)

	env.provider.Decline(false)
	identity, err := env.workflow.Complete(context.Background(), sessionID, "")
	require.NoError(t, err)
	assert.Equal(t, testWalletAddress, identity.WalletAddress)
}

func TestRegistrationCompleteRejectsMalformedAddress(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.advanceToWallet(t)

	_, err := env.workflow.Complete(context.Background(), sessionID, "not-an-address")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindValidation, serr.Kind)
	assert.Contains(t, serr.Fields, "wallet_address")
}

func TestRegistrationValidationReportsAllFields(t *testing.T) {
	env := newTestEnv(t)
	session := env.workflow.Begin()

	form := validForm()
	form.FullName = "  "
	form.Email = "not-an-email"
	form.ExternalID = "ab!"
	form.Password = "shrt"
	form.ConfirmPassword = "different"

	_, err := env.workflow.SubmitInfo(context.Background(), session.ID, form)

	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindValidation, coreErr.Kind)
	assert.Contains(t, coreErr.Fields, "full_name")
	assert.Contains(t, coreErr.Fields, "email")
	assert.Contains(t, coreErr.Fields, "external_id")
	assert.Contains(t, coreErr.Fields, "password")

	// The session did not advance.
	view, err := env.workflow.Session(session.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCollectingInfo, view.Stage)
}

func TestRegistrationPasswordMismatch(t *testing.T) {
	env := newTestEnv(t)
	session := env.workflow.Begin()

	form := validForm()
	form.ConfirmPassword = "hunter43"

	_, err := env.workflow.SubmitInfo(context.Background(), session.ID, form)

	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	assert.Contains(t, coreErr.Fields, "confirm_password")
}

func TestRegistrationCodeMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.workflow.Begin()

	_, err := env.workflow.SubmitInfo(ctx, session.ID, validForm())
	require.NoError(t, err)

	_, err = env.workflow.SubmitCode(ctx, session.ID, "000000")
	var coreErr *Error
	if env.issuedCode(t, session.ID) == "000000" {
		t.Skip("issued code happens to match the probe")
	}
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindValidation, coreErr.Kind)

	// Empty input never matches.
	_, err = env.workflow.SubmitCode(ctx, session.ID, "")
	require.Error(t, err)
}

func TestRegistrationResendReplacesCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.workflow.Begin()

	_, err := env.workflow.SubmitInfo(ctx, session.ID, validForm())
	require.NoError(t, err)
	first := env.issuedCode(t, session.ID)

	result, err := env.workflow.ResendCode(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, result.CodeDelivered)
	second := env.issuedCode(t, session.ID)

	if first == second {
		t.Skip("resend produced the same random code")
	}
	_, err = env.workflow.SubmitCode(ctx, session.ID, first)
	require.Error(t, err, "old code must be invalidated")
	_, err = env.workflow.SubmitCode(ctx, session.ID, second)
	require.NoError(t, err)
}

func TestRegistrationDeliveryFailureStillAdvances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.workflow.Begin()

	env.sender.Err = errors.New("smtp relay down")
	result, err := env.workflow.SubmitInfo(ctx, session.ID, validForm())
	require.NoError(t, err)
	assert.False(t, result.CodeDelivered, "degraded success expected")
	assert.Equal(t, StageAwaitingCode, result.Stage)

	// The code was still issued and works.
	env.sender.Err = nil
	_, err = env.workflow.SubmitCode(ctx, session.ID, env.issuedCode(t, session.ID))
	require.NoError(t, err)
}

func TestRegistrationBackRetainsForm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.workflow.Begin()

	_, err := env.workflow.SubmitInfo(ctx, session.ID, validForm())
	require.NoError(t, err)

	view, err := env.workflow.Back(session.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCollectingInfo, view.Stage)
	assert.Equal(t, "ngozi@example.edu", view.Form.Email, "form data retained")
	assert.Empty(t, view.Form.Password, "password never leaves the workflow")

	// Back at the initial stage is a no-op.
	view, err = env.workflow.Back(session.ID)
	require.NoError(t, err)
	assert.Equal(t, StageCollectingInfo, view.Stage)
}

func TestRegistrationConflictAttribution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, validForm())

	// Same external ID, different email: only external_id is blamed.
	form := validForm()
	form.Email = "other@example.edu"

	session := env.workflow.Begin()
	_, err := env.workflow.SubmitInfo(ctx, session.ID, form)

	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindConflict, coreErr.Kind)
	assert.Contains(t, coreErr.Fields, "external_id")
	assert.NotContains(t, coreErr.Fields, "email")
}

func TestRegistrationLateConstraintMapsToConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two sessions pass the advisory check before either persists.
	first := env.workflow.Begin()
	second := env.workflow.Begin()

	form2 := validForm()
	form2.Phone = "+2348098765432"

	_, err := env.workflow.SubmitInfo(ctx, first.ID, validForm())
	require.NoError(t, err)
	_, err = env.workflow.SubmitInfo(ctx, second.ID, form2)
	require.NoError(t, err)

	_, err = env.workflow.SubmitCode(ctx, first.ID, env.issuedCode(t, first.ID))
	require.NoError(t, err)
	_, err = env.workflow.SubmitCode(ctx, second.ID, env.issuedCode(t, second.ID))
	require.NoError(t, err)

	_, err = env.workflow.Complete(ctx, first.ID, "")
	require.NoError(t, err)

	// The second persist hits the store constraint, surfaced as the
	// same field-attributed conflict the advisory check produces.
	_, err = env.workflow.Complete(ctx, second.ID, "")
	var coreErr *Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, KindConflict, coreErr.Kind)
	assert.Contains(t, coreErr.Fields, "email")

	// The losing session stays in AwaitingWallet.
	view, err := env.workflow.Session(second.ID)
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingWallet, view.Stage)
}

func TestRegistrationConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			form := validForm()
			form.Phone = fmt.Sprintf("+23480123456%02d", i)

			session := env.workflow.Begin()
			if _, err := env.workflow.SubmitInfo(ctx, session.ID, form); err != nil {
				errs[i] = err
				return
			}
			if _, err := env.workflow.SubmitCode(ctx, session.ID, env.issuedCode(t, session.ID)); err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = env.workflow.Complete(ctx, session.ID, "")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var coreErr *Error
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, KindConflict, coreErr.Kind)
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent registration may win")
}

func TestRegistrationUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.workflow.SubmitInfo(context.Background(), "no-such-session", validForm())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
