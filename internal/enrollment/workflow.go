package enrollment

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	client "github.com/tupyy/mdm-agent-ng/internal/client/http"
	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

// ErrProfileMismatch is the terminal failure when the device session is not
// on the guest profile.
var ErrProfileMismatch = errors.New("device needs to change its profile")

type State int

const (
	InitialState State = iota
	LoadingState
	SuccessState
	FailState
)

func (s State) String() string {
	switch s {
	case InitialState:
		return "initial"
	case LoadingState:
		return "loading"
	case SuccessState:
		return "success"
	case FailState:
		return "fail"
	default:
		return "unknown"
	}
}

// Client is the subset of the http session client the workflow drives.
type Client interface {
	InitSession(ctx context.Context, userToken string) (client.SessionContext, error)
	GetFullSession(ctx context.Context, session client.SessionContext) (entity.FullSession, error)
	ChangeActiveProfile(ctx context.Context, session client.SessionContext, profileID int) error
	RegisterAgent(ctx context.Context, session client.SessionContext, enrollment entity.EnrollmentRequest) (int, error)
	GetAgentDescriptor(ctx context.Context, session client.SessionContext, agentID int) (entity.AgentIdentity, error)
}

// Store persists the records the workflow produces.
type Store interface {
	SetEnrollment(enrollment entity.EnrollmentRecord) error
	SetUserProfile(user entity.UserProfile) error
	SetAgent(agent entity.AgentIdentity) error
}

// Submission is the user-provided enrollment form data.
type Submission struct {
	Email     string
	FirstName string
	LastName  string
}

// Workflow is the linear, fail-fast enrollment sequence. Any step failing
// transitions to FailState with the server-supplied message; FailState
// reverts to InitialState after the revert delay.
type Workflow struct {
	client Client
	store  Store

	userToken       string
	invitationToken string
	serial          string
	osVersion       string

	failRevertDelay time.Duration

	// lock guards state against the fail-revert timer.
	lock  sync.Mutex
	state State

	// StateObserver, when set, is called on every state transition.
	StateObserver func(state State)
}

func New(client Client, store Store, userToken, invitationToken, serial, osVersion string, failRevertDelay time.Duration) *Workflow {
	return &Workflow{
		client:          client,
		store:           store,
		userToken:       userToken,
		invitationToken: invitationToken,
		serial:          serial,
		osVersion:       osVersion,
		failRevertDelay: failRevertDelay,
		state:           InitialState,
	}
}

func (w *Workflow) State() State {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.state
}

// Run drives the full enrollment sequence for one form submission. On
// success the persisted agent identity is returned so the caller can hand it
// to the session core.
func (w *Workflow) Run(ctx context.Context, submission Submission) (entity.AgentIdentity, error) {
	w.setState(LoadingState)

	agent, err := w.run(ctx, submission)
	if err != nil {
		zap.S().Errorw("enrollment failed", "error", err)
		w.fail()
		return entity.AgentIdentity{}, err
	}

	w.setState(SuccessState)
	zap.S().Infow("device enrolled", "serial", agent.SerialNumber, "topic", agent.BaseTopic)

	return agent, nil
}

func (w *Workflow) run(ctx context.Context, submission Submission) (entity.AgentIdentity, error) {
	session, err := w.client.InitSession(ctx, w.userToken)
	if err != nil {
		return entity.AgentIdentity{}, err
	}

	full, err := w.client.GetFullSession(ctx, session)
	if err != nil {
		return entity.AgentIdentity{}, err
	}

	// enrollment requires the device to still be on the guest profile
	if full.ActiveProfileID != full.GuestProfileID {
		return entity.AgentIdentity{}, ErrProfileMismatch
	}

	if err := w.client.ChangeActiveProfile(ctx, session, full.ActiveProfileID); err != nil {
		return entity.AgentIdentity{}, err
	}

	enrollment := entity.EnrollmentRecord{
		Serial:          w.serial,
		InvitationToken: w.invitationToken,
		Email:           submission.Email,
		FirstName:       submission.FirstName,
		LastName:        submission.LastName,
	}
	if err := w.store.SetEnrollment(enrollment); err != nil {
		return entity.AgentIdentity{}, err
	}

	user := entity.UserProfile{
		Email:     submission.Email,
		FirstName: submission.FirstName,
		LastName:  submission.LastName,
	}
	if err := w.store.SetUserProfile(user); err != nil {
		return entity.AgentIdentity{}, err
	}

	agentID, err := w.client.RegisterAgent(ctx, session, entity.EnrollmentRequest{
		Serial:          w.serial,
		InvitationToken: w.invitationToken,
		Email:           submission.Email,
		FirstName:       submission.FirstName,
		LastName:        submission.LastName,
		Version:         w.osVersion,
		CSR:             "",
	})
	if err != nil {
		return entity.AgentIdentity{}, err
	}

	agent, err := w.client.GetAgentDescriptor(ctx, session, agentID)
	if err != nil {
		return entity.AgentIdentity{}, err
	}

	if agent.SerialNumber == "" {
		agent.SerialNumber = w.serial
	}

	if err := w.store.SetAgent(agent); err != nil {
		return entity.AgentIdentity{}, err
	}

	return agent, nil
}

func (w *Workflow) fail() {
	w.setState(FailState)

	// after the display delay the workflow is ready for a new submission
	time.AfterFunc(w.failRevertDelay, func() {
		w.setState(InitialState)
	})
}

func (w *Workflow) setState(state State) {
	w.lock.Lock()
	w.state = state
	w.lock.Unlock()

	if w.StateObserver != nil {
		w.StateObserver(state)
	}
}
