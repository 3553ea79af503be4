package config

import (
	"time"

	"github.com/avolkov/srscore/internal/domain"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	SRS      SRSConfig      `yaml:"srs"`
	Session  SessionConfig  `yaml:"session"`
	App      AppConfig      `yaml:"app"`
}

// ServerConfig holds HTTP server settings for the rest transport.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings. TestDSN backs the
// test-mode flag (§6 configuration surface): when App.TestMode is set, the
// application connects to TestDSN instead of DSN.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	TestDSN         string        `yaml:"test_dsn"           env:"DATABASE_TEST_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// AppConfig holds the environment-provided tunables named in §6:
// DEFAULT_USER_ID and the test-mode flag.
type AppConfig struct {
	DefaultUserID string `yaml:"default_user_id" env:"DEFAULT_USER_ID" env-required:"true"`
	TestMode      bool   `yaml:"test_mode"       env:"TEST_MODE"       env-default:"false"`
}

// SRSConfig holds the memory-model and update-engine constants from §4.1.
// All fields are tunable; the values below are the spec's recommended
// defaults.
type SRSConfig struct {
	RTarget           float64 `yaml:"r_target"           env:"SRS_R_TARGET"           env-default:"0.70"`
	SMin              float64 `yaml:"s_min"              env:"SRS_S_MIN"              env-default:"0.5"`
	DMin              float64 `yaml:"d_min"              env:"SRS_D_MIN"              env-default:"1.0"`
	DMax              float64 `yaml:"d_max"              env:"SRS_D_MAX"              env-default:"10.0"`
	K                 float64 `yaml:"k"                  env:"SRS_K"                  env-default:"1.2"`
	KFail             float64 `yaml:"k_fail"             env:"SRS_K_FAIL"             env-default:"0.6"`
	Alpha             float64 `yaml:"alpha"              env:"SRS_ALPHA"              env-default:"0.15"`
	Eta               float64 `yaml:"eta"                env:"SRS_ETA"                env-default:"0.8"`
	InitialStability  float64 `yaml:"initial_stability"  env:"SRS_INITIAL_STABILITY"  env-default:"4.0"`
	InitialDifficulty float64 `yaml:"initial_difficulty" env:"SRS_INITIAL_DIFFICULTY" env-default:"5.0"`

	BaseGainHard   float64 `yaml:"base_gain_hard"   env:"SRS_BASE_GAIN_HARD"   env-default:"0.5"`
	BaseGainMedium float64 `yaml:"base_gain_medium" env:"SRS_BASE_GAIN_MEDIUM" env-default:"1.0"`
	BaseGainEasy   float64 `yaml:"base_gain_easy"   env:"SRS_BASE_GAIN_EASY"   env-default:"1.8"`

	URatingAgain  float64 `yaml:"u_rating_again"  env:"SRS_U_RATING_AGAIN"  env-default:"1.0"`
	URatingHard   float64 `yaml:"u_rating_hard"   env:"SRS_U_RATING_HARD"   env-default:"0.35"`
	URatingMedium float64 `yaml:"u_rating_medium" env:"SRS_U_RATING_MEDIUM" env-default:"-0.20"`
	URatingEasy   float64 `yaml:"u_rating_easy"   env:"SRS_U_RATING_EASY"   env-default:"-0.60"`
}

// SessionConfig holds the session-assembler tunables from §6: per-activity
// session size, the LTM fraction, and the NEW-pool eligibility thresholds
// for filter_known gating on verb and preposition activities.
type SessionConfig struct {
	WordSessionSize            int     `yaml:"word_session_size"            env:"SESSION_SIZE_WORD"                    env-default:"20"`
	VerbSessionSize            int     `yaml:"verb_session_size"            env:"SESSION_SIZE_VERB"                    env-default:"20"`
	PrepositionSessionSize     int     `yaml:"preposition_session_size"     env:"SESSION_SIZE_PREPOSITION"             env-default:"20"`
	LTMSessionFraction         float64 `yaml:"ltm_session_fraction"         env:"SESSION_LTM_FRACTION"                 env-default:"0.75"`
	VerbFilterThreshold        float64 `yaml:"verb_filter_threshold"        env:"SESSION_VERB_FILTER_THRESHOLD"        env-default:"0.70"`
	PrepositionFilterThreshold float64 `yaml:"preposition_filter_threshold" env:"SESSION_PREPOSITION_FILTER_THRESHOLD" env-default:"0.70"`
}

// SizeFor returns the configured session size for the given activity.
func (s SessionConfig) SizeFor(exerciseType domain.ExerciseType) int {
	switch exerciseType {
	case domain.ExerciseVerbPerfectum, domain.ExerciseVerbPastTense:
		return s.VerbSessionSize
	case domain.ExerciseWordPreposition:
		return s.PrepositionSessionSize
	default:
		return s.WordSessionSize
	}
}
