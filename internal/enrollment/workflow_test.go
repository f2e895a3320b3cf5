package enrollment_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	client "github.com/tupyy/mdm-agent-ng/internal/client/http"
	"github.com/tupyy/mdm-agent-ng/internal/enrollment"
	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

type fakeClient struct {
	InitSessionErr         error
	FullSession            entity.FullSession
	FullSessionErr         error
	ChangeProfileErr       error
	ChangeProfileCallCount int
	RegisterID             int
	RegisterErr            error
	Descriptor             entity.AgentIdentity
	DescriptorErr          error
}

func (f *fakeClient) InitSession(ctx context.Context, userToken string) (client.SessionContext, error) {
	if f.InitSessionErr != nil {
		return client.SessionContext{}, f.InitSessionErr
	}
	return client.SessionContext{Token: "session-1"}, nil
}

func (f *fakeClient) GetFullSession(ctx context.Context, session client.SessionContext) (entity.FullSession, error) {
	return f.FullSession, f.FullSessionErr
}

func (f *fakeClient) ChangeActiveProfile(ctx context.Context, session client.SessionContext, profileID int) error {
	f.ChangeProfileCallCount++
	return f.ChangeProfileErr
}

func (f *fakeClient) RegisterAgent(ctx context.Context, session client.SessionContext, enrollment entity.EnrollmentRequest) (int, error) {
	return f.RegisterID, f.RegisterErr
}

func (f *fakeClient) GetAgentDescriptor(ctx context.Context, session client.SessionContext, agentID int) (entity.AgentIdentity, error) {
	return f.Descriptor, f.DescriptorErr
}

type fakeStore struct {
	Enrollment *entity.EnrollmentRecord
	User       *entity.UserProfile
	Agent      *entity.AgentIdentity
}

func (f *fakeStore) SetEnrollment(enrollment entity.EnrollmentRecord) error {
	f.Enrollment = &enrollment
	return nil
}

func (f *fakeStore) SetUserProfile(user entity.UserProfile) error {
	f.User = &user
	return nil
}

func (f *fakeStore) SetAgent(agent entity.AgentIdentity) error {
	f.Agent = &agent
	return nil
}

var _ = Describe("enrollment workflow", func() {
	var (
		c          *fakeClient
		store      *fakeStore
		w          *enrollment.Workflow
		states     []enrollment.State
		submission enrollment.Submission
	)

	BeforeEach(func() {
		c = &fakeClient{
			FullSession: entity.FullSession{ActiveProfileID: 9, GuestProfileID: 9},
			RegisterID:  42,
			Descriptor: entity.AgentIdentity{
				BrokerHost:     "broker.example.com",
				BrokerPort:     8883,
				BrokerPassword: "secret",
				BaseTopic:      "/1/agent/serial-1",
			},
		}
		store = &fakeStore{}
		states = nil

		w = enrollment.New(c, store, "user-token", "invitation-token", "serial-1", "linux/amd64", 50*time.Millisecond)
		w.StateObserver = func(state enrollment.State) {
			states = append(states, state)
		}

		submission = enrollment.Submission{
			Email:     "user@example.com",
			FirstName: "Jane",
			LastName:  "Doe",
		}
	})

	It("ends in success and persists the agent identity", func() {
		agent, err := w.Run(context.Background(), submission)
		Expect(err).To(BeNil())

		Expect(w.State()).To(Equal(enrollment.SuccessState))
		Expect(states).To(Equal([]enrollment.State{enrollment.LoadingState, enrollment.SuccessState}))

		Expect(store.Agent).ToNot(BeNil())
		Expect(store.Agent.BaseTopic).To(Equal("/1/agent/serial-1"))
		// the descriptor carries no serial; the device serial fills it
		Expect(agent.SerialNumber).To(Equal("serial-1"))

		Expect(store.Enrollment).ToNot(BeNil())
		Expect(store.Enrollment.InvitationToken).To(Equal("invitation-token"))
		Expect(store.User).ToNot(BeNil())
		Expect(store.User.Email).To(Equal("user@example.com"))
	})

	It("fails without changing the profile when the session is not on the guest profile", func() {
		c.FullSession = entity.FullSession{ActiveProfileID: 3, GuestProfileID: 9}

		_, err := w.Run(context.Background(), submission)
		Expect(err).To(MatchError(enrollment.ErrProfileMismatch))
		Expect(err.Error()).To(Equal("device needs to change its profile"))

		Expect(c.ChangeProfileCallCount).To(Equal(0))
		Expect(w.State()).To(Equal(enrollment.FailState))
		Expect(store.Agent).To(BeNil())
	})

	It("surfaces the server message verbatim on a step failure", func() {
		c.RegisterErr = client.APIError{StatusCode: 400, Message: "invitation token expired"}

		_, err := w.Run(context.Background(), submission)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(Equal("invitation token expired"))
		Expect(store.Agent).To(BeNil())
	})

	It("aborts the remaining steps on the first failure", func() {
		c.InitSessionErr = errors.New("connection refused")

		_, err := w.Run(context.Background(), submission)
		Expect(err).To(HaveOccurred())

		Expect(c.ChangeProfileCallCount).To(Equal(0))
		Expect(store.Enrollment).To(BeNil())
		Expect(store.User).To(BeNil())
	})

	It("reverts from fail to initial after the display delay", func() {
		c.FullSessionErr = errors.New("boom")

		_, err := w.Run(context.Background(), submission)
		Expect(err).To(HaveOccurred())
		Expect(w.State()).To(Equal(enrollment.FailState))

		Eventually(w.State, time.Second).Should(Equal(enrollment.InitialState))
	})
})
