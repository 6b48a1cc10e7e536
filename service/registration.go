package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TradeStacksInc/UNIvote2/encryption"
	"github.com/TradeStacksInc/UNIvote2/models"
	"github.com/TradeStacksInc/UNIvote2/notification"
	"github.com/TradeStacksInc/UNIvote2/storage"
	"github.com/TradeStacksInc/UNIvote2/wallet"
)

// Stage is the registration state machine position. CollectingInfo is
// initial, Complete is terminal.
type Stage string

const (
	StageCollectingInfo Stage = "collecting_info"
	StageAwaitingCode   Stage = "awaiting_code"
	StageAwaitingWallet Stage = "awaiting_wallet"
	StageComplete       Stage = "complete"
)

// previousStage is the pure back-navigation transition. Form data is
// retained by the session; only the position moves.
func previousStage(s Stage) Stage {
	switch s {
	case StageAwaitingCode:
		return StageCollectingInfo
	case StageAwaitingWallet:
		return StageAwaitingCode
	default:
		return s
	}
}

// RegistrationSession is ephemeral per-registrant state. It lives only
// in process memory; an abandoned session is simply dropped and a
// restart re-enters CollectingInfo.
type RegistrationSession struct {
	ID         string
	Stage      Stage
	Form       models.RegistrationForm
	issuedCode string
	createdAt  time.Time
}

// SessionView is the session state exposed to the presentation layer.
// The issued code and password fields never leave the workflow.
type SessionView struct {
	ID    string                  `json:"id"`
	Stage Stage                   `json:"stage"`
	Form  models.RegistrationForm `json:"form"`
}

func (s *RegistrationSession) view() *SessionView {
	form := s.Form
	form.Password = ""
	form.ConfirmPassword = ""
	return &SessionView{ID: s.ID, Stage: s.Stage, Form: form}
}

// SubmitInfoResult reports the outcome of the info step. CodeDelivered
// is false when the code was issued but its delivery is uncertain, so
// the caller can offer an alternate channel.
type SubmitInfoResult struct {
	Stage         Stage `json:"stage"`
	CodeDelivered bool  `json:"code_delivered"`
}

var (
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,12}$`)
)

const minPasswordLength = 6

// validateForm checks every field and reports all failures together.
func validateForm(form models.RegistrationForm) map[string]string {
	fields := make(map[string]string)

	if strings.TrimSpace(form.FullName) == "" {
		fields["full_name"] = "full name is required"
	}
	if !emailPattern.MatchString(form.Email) {
		fields["email"] = "email address is not valid"
	}
	if !phonePattern.MatchString(form.Phone) {
		fields["phone"] = "phone number is not valid"
	}
	if !externalIDPattern.MatchString(form.ExternalID) {
		fields["external_id"] = "must be 6 to 12 letters or digits"
	}
	if len(form.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	} else if form.Password != form.ConfirmPassword {
		fields["confirm_password"] = "passwords do not match"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// RegistrationWorkflow drives a registrant from form submission
// through code verification and wallet binding to a persisted,
// verified identity.
type RegistrationWorkflow struct {
	store      storage.Store
	otp        *OTPVerifier
	sender     notification.Sender
	dispatcher *Dispatcher
	binder     *wallet.Binder
	provider   wallet.Provider
	crypto     *encryption.CryptoService
	metrics    *MetricsCollector
	logger     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*RegistrationSession
}

func NewRegistrationWorkflow(
	store storage.Store,
	otp *OTPVerifier,
	sender notification.Sender,
	dispatcher *Dispatcher,
	binder *wallet.Binder,
	provider wallet.Provider,
	crypto *encryption.CryptoService,
	metrics *MetricsCollector,
	logger *zap.Logger,
) *RegistrationWorkflow {
	return &RegistrationWorkflow{
		store:      store,
		otp:        otp,
		sender:     sender,
		dispatcher: dispatcher,
		binder:     binder,
		provider:   provider,
		crypto:     crypto,
		metrics:    metrics,
		logger:     logger,
		sessions:   make(map[string]*RegistrationSession),
	}
}

// Begin starts a new registration session in CollectingInfo.
func (w *RegistrationWorkflow) Begin() *SessionView {
	session := &RegistrationSession{
		ID:        uuid.New().String(),
		Stage:     StageCollectingInfo,
		createdAt: time.Now(),
	}

	w.mu.Lock()
	w.sessions[session.ID] = session
	w.mu.Unlock()

	return session.view()
}

// Session returns the current view of an active session.
func (w *RegistrationWorkflow) Session(sessionID string) (*SessionView, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	session, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.view(), nil
}

func (w *RegistrationWorkflow) session(sessionID string) (*RegistrationSession, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	session, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func stageError(have, want Stage) *Error {
	return &Error{
		Kind:   KindValidation,
		Reason: fmt.Sprintf("step not available in stage %s (expected %s)", have, want),
	}
}

// SubmitInfo validates the form, runs the advisory uniqueness check
// and issues the verification code. All failing fields are reported
// together. A failed code delivery does not block the transition; the
// result carries the degraded-success signal instead.
func (w *RegistrationWorkflow) SubmitInfo(ctx context.Context, sessionID string, form models.RegistrationForm) (*SubmitInfoResult, error) {
	session, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if session.Stage != StageCollectingInfo {
		w.mu.Unlock()
		return nil, stageError(session.Stage, StageCollectingInfo)
	}
	w.mu.Unlock()

	if fields := validateForm(form); fields != nil {
		return nil, ValidationError(fields)
	}

	// Advisory only: the store constraint at persist time is the
	// authoritative guard against concurrent registrations.
	uniqueness, err := w.store.CheckUniqueness(ctx, form.Email, form.ExternalID)
	if err != nil {
		return nil, ExternalError("uniqueness check", err)
	}
	if uniqueness.EmailTaken || uniqueness.ExternalIDTaken {
		fields := make(map[string]string)
		if uniqueness.EmailTaken {
			fields[storage.FieldEmail] = "an account with this email already exists"
		}
		if uniqueness.ExternalIDTaken {
			fields[storage.FieldExternalID] = "this ID is already registered"
		}
		return nil, &Error{Kind: KindConflict, Reason: "already registered", Fields: fields}
	}

	code, err := w.otp.Issue()
	if err != nil {
		return nil, ExternalError("code generation", err)
	}

	delivered := true
	if err := w.sender.Send(ctx, notification.VerificationCode(form.Email, form.FullName, code)); err != nil {
		// Code issuance still succeeds; the caller learns delivery
		// is uncertain and can offer another channel.
		delivered = false
		w.logger.Warn("verification code delivery failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	w.mu.Lock()
	session.Form = form
	session.issuedCode = code
	session.Stage = StageAwaitingCode
	w.mu.Unlock()

	return &SubmitInfoResult{Stage: StageAwaitingCode, CodeDelivered: delivered}, nil
}

// ResendCode issues a fresh code, invalidating the previous one.
func (w *RegistrationWorkflow) ResendCode(ctx context.Context, sessionID string) (*SubmitInfoResult, error) {
	session, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if session.Stage != StageAwaitingCode {
		w.mu.Unlock()
		return nil, stageError(session.Stage, StageAwaitingCode)
	}
	form := session.Form
	w.mu.Unlock()

	code, err := w.otp.Issue()
	if err != nil {
		return nil, ExternalError("code generation", err)
	}

	delivered := true
	if err := w.sender.Send(ctx, notification.VerificationCode(form.Email, form.FullName, code)); err != nil {
		delivered = false
		w.logger.Warn("verification code delivery failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	w.mu.Lock()
	session.issuedCode = code
	w.mu.Unlock()

	return &SubmitInfoResult{Stage: StageAwaitingCode, CodeDelivered: delivered}, nil
}

// SubmitCode checks the submitted code against the issued one and
// advances to AwaitingWallet on a match.
func (w *RegistrationWorkflow) SubmitCode(_ context.Context, sessionID, code string) (*SessionView, error) {
	session, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if session.Stage != StageAwaitingCode {
		return nil, stageError(session.Stage, StageAwaitingCode)
	}
	if !w.otp.Check(code, session.issuedCode) {
		return nil, ValidationError(map[string]string{
			"verification_code": "the code does not match",
		})
	}

	session.Stage = StageAwaitingWallet
	return session.view(), nil
}

// Back moves the session one step back, retaining form data.
func (w *RegistrationWorkflow) Back(sessionID string) (*SessionView, error) {
	session, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	session.Stage = previousStage(session.Stage)
	return session.view(), nil
}

// Complete performs the final transition, in order: create the durable
// password credential, establish the wallet binding, persist the
// verified identity, and queue the welcome notification. On failure
// the session stays in AwaitingWallet so the user can retry.
//
// approvedAddress, when non-empty, is an address the presentation
// layer already obtained from the provider; otherwise the injected
// provider is asked directly.
func (w *RegistrationWorkflow) Complete(ctx context.Context, sessionID, approvedAddress string) (*models.Identity, error) {
	started := time.Now()
	identity, err := w.complete(ctx, sessionID, approvedAddress)
	w.metrics.RecordRegistration(time.Since(started), err != nil)
	return identity, err
}

func (w *RegistrationWorkflow) complete(ctx context.Context, sessionID, approvedAddress string) (*models.Identity, error) {
	session, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if session.Stage != StageAwaitingWallet {
		w.mu.Unlock()
		return nil, stageError(session.Stage, StageAwaitingWallet)
	}
	form := session.Form
	w.mu.Unlock()

	// (a) Durable credential. A failure here is reported generically
	// so the user is not confused by partial-state detail.
	passwordHash, err := w.crypto.HashPassword(form.Password)
	if err != nil {
		w.logger.Error("credential creation failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, &Error{Kind: KindExternalDependency, Reason: "registration could not be completed"}
	}

	// (b) Wallet binding. The identity record does not exist yet, so
	// the binder only connects and normalizes; persistence happens with
	// the identity in (c). The provider call blocks this session only.
	var address string
	if approvedAddress != "" {
		address, err = w.crypto.NormalizeWalletAddress(approvedAddress)
	} else {
		address, err = w.binder.Connect(ctx, w.provider)
	}
	switch {
	case errors.Is(err, wallet.ErrDeclined):
		return nil, ErrWalletDeclined
	case errors.Is(err, encryption.ErrInvalidAddress):
		return nil, ValidationError(map[string]string{
			"wallet_address": "wallet address is not valid",
		})
	case err != nil:
		return nil, ExternalError("wallet connection", err)
	}

	// (c) Persist the verified identity; verified is set atomically
	// with creation, there is no unverified-then-verified path.
	identity := &models.Identity{
		ID:            uuid.New().String(),
		FullName:      form.FullName,
		Email:         form.Email,
		ExternalID:    form.ExternalID,
		Phone:         form.Phone,
		PasswordHash:  passwordHash,
		WalletAddress: address,
		Verified:      true,
		CreatedAt:     time.Now(),
	}
	if err := w.store.CreateIdentity(ctx, identity); err != nil {
		var constraint *storage.ConstraintError
		if errors.As(err, &constraint) {
			// Late constraint hit looks exactly like the advisory
			// check would have: a field-attributed conflict.
			return nil, conflictForField(constraint.Field)
		}
		// The credential from (a) has no durable record to roll back
		// against; the gap is logged for operator follow-up.
		w.logger.Warn("identity persistence failed after credential creation",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, &Error{Kind: KindExternalDependency, Reason: "registration could not be completed"}
	}

	// (d) Welcome notification; delivery never gates completion.
	w.dispatcher.Dispatch(notification.Welcome(identity.Email, identity.FullName))

	w.mu.Lock()
	session.Stage = StageComplete
	delete(w.sessions, sessionID)
	w.mu.Unlock()

	w.logger.Info("registration complete",
		zap.String("identity_id", identity.ID),
		zap.String("external_id", identity.ExternalID))
	return identity, nil
}

func conflictForField(field string) *Error {
	switch field {
	case storage.FieldEmail:
		return ConflictError(storage.FieldEmail, "an account with this email already exists")
	case storage.FieldExternalID:
		return ConflictError(storage.FieldExternalID, "this ID is already registered")
	default:
		return &Error{Kind: KindConflict, Reason: "already registered"}
	}
}
