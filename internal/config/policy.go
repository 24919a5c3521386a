package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"saffy-workflow/internal/alert"
	"saffy-workflow/internal/permit"
)

// PolicyFile POLICY_FILE 的 YAML 结构
//
//	control_table:
//	  hot_work:
//	    - name: area_supervisor
//	      role: area_supervisor
//	alert_policy:
//	  proximity_ratio: 0.15
//	  promote_fluctuating: true
type PolicyFile struct {
	ControlTable permit.ControlTable `yaml:"control_table"`
	AlertPolicy  alert.Policy        `yaml:"alert_policy"`
}

// LoadPolicyFile 未出现的报警策略字段保留默认值
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	p := &PolicyFile{AlertPolicy: alert.DefaultPolicy()}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return p, nil
}
