package config

import (
	"fmt"

	"github.com/google/uuid"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if _, err := uuid.Parse(c.App.DefaultUserID); err != nil {
		return fmt.Errorf("app.default_user_id: not a UUID: %w", err)
	}

	if err := c.SRS.validate(); err != nil {
		return fmt.Errorf("srs: %w", err)
	}

	if err := c.Session.validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	return nil
}

func (s *SRSConfig) validate() error {
	if s.SMin <= 0 {
		return fmt.Errorf("s_min must be > 0 (got %v)", s.SMin)
	}
	if s.DMin <= 0 || s.DMax <= s.DMin {
		return fmt.Errorf("d_min/d_max out of order (got %v/%v)", s.DMin, s.DMax)
	}
	if s.RTarget <= 0 || s.RTarget >= 1 {
		return fmt.Errorf("r_target must be in (0,1) (got %v)", s.RTarget)
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if s.WordSessionSize <= 0 || s.VerbSessionSize <= 0 || s.PrepositionSessionSize <= 0 {
		return fmt.Errorf("session sizes must be > 0")
	}
	if s.LTMSessionFraction < 0 || s.LTMSessionFraction > 1 {
		return fmt.Errorf("ltm_session_fraction must be in [0,1] (got %v)", s.LTMSessionFraction)
	}
	return nil
}
