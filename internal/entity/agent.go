package entity

// AgentIdentity is the server-issued record identifying this enrolled device.
// It is created once, when the enrollment workflow completes, and is immutable
// for the life of the session.
type AgentIdentity struct {
	// BrokerHost is the hostname of the mqtt broker.
	BrokerHost string `json:"broker"`
	// BrokerPort is the mqtt broker port.
	BrokerPort int `json:"port"`
	// BrokerPassword is the per-device mqtt password.
	BrokerPassword string `json:"mqttpasswd"`
	// SerialNumber is the stable per-installation device identifier.
	// It is also the mqtt username.
	SerialNumber string `json:"serial"`
	// BaseTopic is the root of the device's topic namespace.
	BaseTopic string `json:"topic"`
}

// EnrollmentRecord holds the data captured when enrollment starts.
type EnrollmentRecord struct {
	Serial          string `json:"serial"`
	InvitationToken string `json:"invitation_token"`
	Email           string `json:"email"`
	FirstName       string `json:"firstname"`
	LastName        string `json:"lastname"`
}

// UserProfile is the descriptive record of the enrolled user.
// It is consumed, never mutated, by the session core.
type UserProfile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// SupervisorProfile describes the fleet supervisor contact.
type SupervisorProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DeepLink carries the tokens of the enrollment invitation. The user token
// also authenticates the http sessions opened for file deploys.
type DeepLink struct {
	UserToken       string `json:"user_token"`
	InvitationToken string `json:"invitation_token"`
}

// EnrollmentRequest is the register-agent request body.
type EnrollmentRequest struct {
	Serial          string `json:"_serial"`
	InvitationToken string `json:"_invitation_token"`
	Email           string `json:"_email"`
	FirstName       string `json:"firstname"`
	LastName        string `json:"lastname"`
	Version         string `json:"version"`
	CSR             string `json:"csr"`
}

// FullSession is the subset of the full-session response the enrollment
// workflow and the file deploy chain care about.
type FullSession struct {
	ActiveProfileID int
	GuestProfileID  int
}
