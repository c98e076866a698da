package reminder

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidConfig signals a configuration update violated a range bound.
var ErrInvalidConfig = errors.New("reminder: invalid config")

// Config controls when reminders fire relative to agreement expiry. All
// values are whole days. It is replaced wholesale through Holder; a rejected
// update leaves the prior config in effect.
type Config struct {
	// Initial is the days-before-expiry threshold for the first reminder.
	Initial int `json:"initial"`
	// Followup lists additional day offsets that trigger standard reminders.
	Followup []int `json:"followup"`
	// Urgent is the threshold below which wording escalates.
	Urgent int `json:"urgent"`
	// Final is the last-chance threshold.
	Final int `json:"final"`
	// MaxAttempts caps reminders per agreement.
	MaxAttempts int `json:"max_attempts"`
}

// DefaultConfig returns the boot-time reminder schedule.
func DefaultConfig() Config {
	return Config{
		Initial:     7,
		Followup:    []int{14, 10},
		Urgent:      3,
		Final:       1,
		MaxAttempts: 5,
	}
}

// Validate enforces the administrative range bounds. A violating config is
// rejected wholesale; there is no partial application.
func (c Config) Validate() error {
	if c.Initial < 1 || c.Initial > 30 {
		return fmt.Errorf("%w: initial %d outside [1,30]", ErrInvalidConfig, c.Initial)
	}
	for _, d := range c.Followup {
		if d < 1 || d > 60 {
			return fmt.Errorf("%w: followup entry %d outside [1,60]", ErrInvalidConfig, d)
		}
	}
	if c.Urgent < 1 || c.Urgent > 14 {
		return fmt.Errorf("%w: urgent %d outside [1,14]", ErrInvalidConfig, c.Urgent)
	}
	if c.Final < 1 || c.Final > 7 {
		return fmt.Errorf("%w: final %d outside [1,7]", ErrInvalidConfig, c.Final)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("%w: maxAttempts %d outside [1,10]", ErrInvalidConfig, c.MaxAttempts)
	}
	return nil
}

// Holder owns the live reminder configuration. Reads are lock-free; updates
// swap the whole value after validation, so the scheduler never observes a
// half-applied config.
type Holder struct {
	v atomic.Pointer[Config]
}

// NewHolder validates and installs the initial configuration.
func NewHolder(cfg Config) (*Holder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Holder{}
	h.v.Store(&cfg)
	return h, nil
}

// Current returns the live configuration.
func (h *Holder) Current() Config {
	return *h.v.Load()
}

// Replace validates cfg and installs it atomically. On error the previous
// configuration remains in effect.
func (h *Holder) Replace(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.v.Store(&cfg)
	return nil
}
