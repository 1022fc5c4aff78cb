package campaign

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mode selects the shape of the send schedule.
type Mode string

const (
	ModeNoDelay     Mode = "No Delay"
	ModeCustomDelay Mode = "Custom Delay"
	ModeBatch       Mode = "Batch Mode"
	ModeSpike       Mode = "Spike Mode"
)

var modeAliases = map[string]Mode{
	"":             ModeNoDelay,
	"no delay":     ModeNoDelay,
	"no_delay":     ModeNoDelay,
	"nodelay":      ModeNoDelay,
	"custom delay": ModeCustomDelay,
	"custom_delay": ModeCustomDelay,
	"custom":       ModeCustomDelay,
	"batch mode":   ModeBatch,
	"batch":        ModeBatch,
	"spike mode":   ModeSpike,
	"spike":        ModeSpike,
}

// ParseMode accepts the display names saved by the desktop app and snake_case aliases.
func ParseMode(s string) (Mode, error) {
	if m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return Mode(s), errors.Wrapf(ErrInvalidSettings, "unknown sending mode %q", s)
}

// UnmarshalText normalizes aliases. Unknown names are kept and rejected by Validate.
func (m *Mode) UnmarshalText(b []byte) error {
	*m, _ = ParseMode(string(b))
	return nil
}

// DispatchModel selects how the tasks of a run are executed.
type DispatchModel string

const (
	DispatchSequential DispatchModel = "sequential"
	DispatchTimer      DispatchModel = "timer"
)

// StartDateLayout is the format of Settings.StartDate.
const StartDateLayout = "2006-01-02"

// Settings is the persisted campaign configuration: the selected pool names plus
// the sending mode and its parameters. Delays are in seconds.
type Settings struct {
	Leads       string `json:"leads,omitempty"`
	SMTPs       string `json:"smtps,omitempty"`
	Subjects    string `json:"subjects,omitempty"`
	Messages    string `json:"messages,omitempty"`
	Attachments string `json:"attachments,omitempty"`
	Proxies     string `json:"proxies,omitempty"`

	Mode          Mode    `json:"sending_mode"`
	DelayMin      float64 `json:"delay_min"`
	DelayMax      float64 `json:"delay_max"`
	BatchMin      int     `json:"batch_min"`
	BatchMax      int     `json:"batch_max"`
	BatchDelayMin float64 `json:"batch_delay_min"`
	BatchDelayMax float64 `json:"batch_delay_max"`
	SpikeDays     []int   `json:"spike_days,omitempty"`
	StartDate     string  `json:"start_date,omitempty"` // spike day 0, YYYY-MM-DD in local time

	Dispatch DispatchModel `json:"dispatch,omitempty"`
	Seed     uint64        `json:"seed,omitempty"` // 0 picks a random seed per assembly
}

// DefaultSettings returns the values a new campaign starts with.
func DefaultSettings() Settings {
	return Settings{
		Mode:          ModeNoDelay,
		DelayMin:      0,
		DelayMax:      5,
		BatchMin:      10,
		BatchMax:      20,
		BatchDelayMin: 60,
		BatchDelayMax: 120,
		Dispatch:      DispatchSequential,
	}
}

// UnmarshalJSON fills absent keys from DefaultSettings.
func (s *Settings) UnmarshalJSON(b []byte) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Settings(p)
	return nil
}

// ParseSettings decodes a campaign_config.json document and validates it.
func ParseSettings(b []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return Settings{}, errors.Wrap(err, "failed to decode campaign settings")
	}
	return s, s.Validate()
}

// Validate checks the parameters of the selected mode.
func (s Settings) Validate() error {
	mode, err := ParseMode(string(s.Mode))
	if err != nil {
		return &ConfigError{Field: "sending_mode", Err: err}
	}

	switch s.Dispatch {
	case "", DispatchSequential, DispatchTimer:
	default:
		return configError("dispatch", ErrInvalidSettings, "unknown dispatch model %q", s.Dispatch)
	}

	switch mode {
	case ModeCustomDelay:
		return validateRange("delay", s.DelayMin, s.DelayMax)
	case ModeBatch:
		if s.BatchMin < 1 {
			return configError("batch_min", ErrInvalidSettings, "must be at least 1, got %d", s.BatchMin)
		}
		if s.BatchMax < s.BatchMin {
			return configError("batch_max", ErrInvalidSettings, "%d is below batch_min %d", s.BatchMax, s.BatchMin)
		}
		return validateRange("batch_delay", s.BatchDelayMin, s.BatchDelayMax)
	case ModeSpike:
		if len(s.SpikeDays) == 0 {
			return configError("spike_days", ErrInvalidSettings, "no day counts provided")
		}
		for i, c := range s.SpikeDays {
			if c < 0 {
				return configError("spike_days", ErrInvalidSettings, "day %d has negative count %d", i+1, c)
			}
		}
		if s.SpikeTotal() == 0 {
			return configError("spike_days", ErrInvalidSettings, "all day counts are zero")
		}
		if _, err := s.Start(time.Local); err != nil {
			return &ConfigError{Field: "start_date", Err: err}
		}
	}
	return nil
}

func validateRange(field string, lo, hi float64) error {
	if lo < 0 {
		return configError(field+"_min", ErrInvalidSettings, "must not be negative, got %v", lo)
	}
	if hi < lo {
		return configError(field+"_max", ErrInvalidSettings, "%v is below %s_min %v", hi, field, lo)
	}
	return nil
}

// SpikeTotal is the number of sends the spike days ask for.
func (s Settings) SpikeTotal() int {
	total := 0
	for _, c := range s.SpikeDays {
		total += c
	}
	return total
}

// Start parses StartDate in loc. An empty StartDate yields the zero time, meaning "now".
func (s Settings) Start(loc *time.Location) (time.Time, error) {
	if s.StartDate == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(StartDateLayout, s.StartDate, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidSettings, "start date %q: %v", s.StartDate, err)
	}
	return t, nil
}

// DelayRange returns the custom delay bounds.
func (s Settings) DelayRange() (time.Duration, time.Duration) {
	return seconds(s.DelayMin), seconds(s.DelayMax)
}

// BatchDelayRange returns the pause bounds between batches.
func (s Settings) BatchDelayRange() (time.Duration, time.Duration) {
	return seconds(s.BatchDelayMin), seconds(s.BatchDelayMax)
}

// DispatchModelOrDefault returns the dispatch model, sequential when unset.
func (s Settings) DispatchModelOrDefault() DispatchModel {
	if s.Dispatch == "" {
		return DispatchSequential
	}
	return s.Dispatch
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
