package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
)

// File is the optional YAML provider configuration. ${VAR} references are
// expanded from the environment before parsing.
//
//	default: twilio
//	queue: false
//	random_drivers: [twilio, msg91]
//	providers:
//	  twilio:
//	    sid: ${TWILIO_SID}
type File struct {
	Default       string                       `yaml:"default"`
	Queue         *bool                        `yaml:"queue"`
	RandomDrivers []string                     `yaml:"random_drivers"`
	Providers     map[string]map[string]string `yaml:"providers"`
}

// LoadFile reads and parses the provider file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// apply overlays the file on sms. Provider entries in the file replace the
// environment entry of the same name.
func (f *File) apply(sms *SMSConfig) {
	if d := strings.TrimSpace(f.Default); d != "" {
		sms.Default = strings.ToLower(d)
	}
	if f.Queue != nil {
		sms.Queue = *f.Queue
	}
	if len(f.RandomDrivers) > 0 {
		sms.RandomDrivers = append([]string(nil), f.RandomDrivers...)
	}
	if sms.Providers == nil {
		sms.Providers = make(map[string]common.ProviderConfig)
	}
	for name, values := range f.Providers {
		pc := make(common.ProviderConfig, len(values))
		for k, v := range values {
			pc[k] = v
		}
		sms.Providers[strings.ToLower(name)] = pc
	}
}
