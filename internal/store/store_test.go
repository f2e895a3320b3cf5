package store

import (
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

func TestStoreRoundTrip(t *testing.T) {
	g := NewWithT(t)

	s, err := New(filepath.Join(t.TempDir(), "agent.db"))
	g.Expect(err).To(BeNil())

	agent := entity.AgentIdentity{
		BrokerHost:     "broker.example.com",
		BrokerPort:     8883,
		BrokerPassword: "secret",
		SerialNumber:   "serial-1",
		BaseTopic:      "/1/agent/serial-1",
	}

	g.Expect(s.SetAgent(agent)).To(Succeed())

	got, ok, err := s.Agent()
	g.Expect(err).To(BeNil())
	g.Expect(ok).To(BeTrue())
	g.Expect(got).To(Equal(agent))

	// absent key
	_, ok, err = s.Enrollment()
	g.Expect(err).To(BeNil())
	g.Expect(ok).To(BeFalse())
}

func TestStoreOverwrite(t *testing.T) {
	g := NewWithT(t)

	s, err := New(filepath.Join(t.TempDir(), "agent.db"))
	g.Expect(err).To(BeNil())

	g.Expect(s.SetManifestVersion("2.0")).To(Succeed())
	g.Expect(s.SetManifestVersion("2.1")).To(Succeed())

	version, ok, err := s.ManifestVersion()
	g.Expect(err).To(BeNil())
	g.Expect(ok).To(BeTrue())
	g.Expect(version).To(Equal("2.1"))
}

func TestStoreClearAll(t *testing.T) {
	g := NewWithT(t)

	s, err := New(filepath.Join(t.TempDir(), "agent.db"))
	g.Expect(err).To(BeNil())

	g.Expect(s.SetEnrollment(entity.EnrollmentRecord{Serial: "serial-1"})).To(Succeed())
	g.Expect(s.SetUserProfile(entity.UserProfile{Email: "user@example.com"})).To(Succeed())
	g.Expect(s.SetAdminFlag(true)).To(Succeed())

	g.Expect(s.ClearAll()).To(Succeed())

	_, ok, err := s.Enrollment()
	g.Expect(err).To(BeNil())
	g.Expect(ok).To(BeFalse())

	_, ok, err = s.UserProfile()
	g.Expect(err).To(BeNil())
	g.Expect(ok).To(BeFalse())

	g.Expect(s.AdminFlag()).To(BeFalse())
}
