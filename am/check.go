package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/kwpulse/errors"
)

// CheckReport is the result of strictly decoding one config file
type CheckReport struct {
	Path        string   `json:"path" yaml:"path"`
	UnknownKeys []string `json:"unknown_keys" yaml:"unknown_keys"`
	// Err is a validation failure of the decoded values, if any
	Err error `json:"-" yaml:"-"`
}

// OK reports whether the file has no unknown keys and validates.
func (r *CheckReport) OK() bool {
	return len(r.UnknownKeys) == 0 && r.Err == nil
}

// CheckFile decodes path over the defaults, reports keys that map to no
// setting, and validates the result. Syntax errors are returned as errors.
func CheckFile(path string) (*CheckReport, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	report := &CheckReport{Path: path, UnknownKeys: []string{}}
	for _, key := range meta.Undecoded() {
		report.UnknownKeys = append(report.UnknownKeys, key.String())
	}
	sort.Strings(report.UnknownKeys)
	report.Err = cfg.Validate()
	return report, nil
}
