package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

const (
	enrollmentKey = "enrollment"
	userKey       = "user"
	supervisorKey = "supervisor"
	agentKey      = "agent"
	deeplinkKey   = "deeplink"
	adminKey      = "admin"
	manifestKey   = "manifest"
)

// record is one durable keyed value. Values are opaque json blobs.
type record struct {
	Key   string `gorm:"primaryKey"`
	Value []byte
}

// Store holds the small durable session records: enrollment identity, user
// profile, supervisor info, agent identity, admin flag and manifest version.
// Access must be serialized by the caller; there is one writer, the session
// core loop.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create store directory '%w'", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open store '%w'", err)
	}

	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("cannot migrate store '%w'", err)
	}

	return &Store{db: db}, nil
}

// Get reads the record stored under key into out. It returns false when the
// key is absent.
func (s *Store) Get(key string, out any) (bool, error) {
	var r record
	err := s.db.First(&r, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot read record %q '%w'", key, err)
	}

	if err := json.Unmarshal(r.Value, out); err != nil {
		return false, fmt.Errorf("cannot decode record %q '%w'", key, err)
	}

	return true, nil
}

func (s *Store) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cannot encode record %q '%w'", key, err)
	}

	err = s.db.Save(&record{Key: key, Value: data}).Error
	if err != nil {
		return fmt.Errorf("cannot write record %q '%w'", key, err)
	}

	return nil
}

// ClearAll removes every persisted record. It is the unenroll path.
func (s *Store) ClearAll() error {
	err := s.db.Where("key <> ''").Delete(&record{}).Error
	if err != nil {
		return fmt.Errorf("cannot clear store '%w'", err)
	}

	return nil
}

func (s *Store) Agent() (entity.AgentIdentity, bool, error) {
	var agent entity.AgentIdentity
	ok, err := s.Get(agentKey, &agent)
	return agent, ok, err
}

func (s *Store) SetAgent(agent entity.AgentIdentity) error {
	return s.Set(agentKey, agent)
}

func (s *Store) Enrollment() (entity.EnrollmentRecord, bool, error) {
	var enrollment entity.EnrollmentRecord
	ok, err := s.Get(enrollmentKey, &enrollment)
	return enrollment, ok, err
}

func (s *Store) SetEnrollment(enrollment entity.EnrollmentRecord) error {
	return s.Set(enrollmentKey, enrollment)
}

func (s *Store) UserProfile() (entity.UserProfile, bool, error) {
	var user entity.UserProfile
	ok, err := s.Get(userKey, &user)
	return user, ok, err
}

func (s *Store) SetUserProfile(user entity.UserProfile) error {
	return s.Set(userKey, user)
}

func (s *Store) Supervisor() (entity.SupervisorProfile, bool, error) {
	var supervisor entity.SupervisorProfile
	ok, err := s.Get(supervisorKey, &supervisor)
	return supervisor, ok, err
}

func (s *Store) SetSupervisor(supervisor entity.SupervisorProfile) error {
	return s.Set(supervisorKey, supervisor)
}

func (s *Store) DeepLink() (entity.DeepLink, bool, error) {
	var deeplink entity.DeepLink
	ok, err := s.Get(deeplinkKey, &deeplink)
	return deeplink, ok, err
}

func (s *Store) SetDeepLink(deeplink entity.DeepLink) error {
	return s.Set(deeplinkKey, deeplink)
}

func (s *Store) AdminFlag() bool {
	var admin bool
	ok, err := s.Get(adminKey, &admin)
	if err != nil || !ok {
		return false
	}

	return admin
}

func (s *Store) SetAdminFlag(admin bool) error {
	return s.Set(adminKey, admin)
}

func (s *Store) SetManifestVersion(version string) error {
	return s.Set(manifestKey, version)
}

func (s *Store) ManifestVersion() (string, bool, error) {
	var version string
	ok, err := s.Get(manifestKey, &version)
	return version, ok, err
}
