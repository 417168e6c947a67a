package organization

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/splax/statuspage/internal/domain"
)

// Template describes a service seeded into every new organization.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	MonitorURL  string `yaml:"monitor_url"`
}

// TemplateFile is the on-disk layout of DEFAULT_SERVICES_FILE.
type TemplateFile struct {
	Services []Template `yaml:"services"`
}

// DefaultTemplates are used when no template file is configured.
var DefaultTemplates = []Template{
	{Name: "Website", Description: "Main website"},
	{Name: "API", Description: "Public API"},
	{Name: "Database", Description: "Primary database"},
}

// LoadTemplates reads service templates from a YAML file.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service templates %s: %w", path, err)
	}
	return ParseTemplates(data)
}

// ParseTemplates decodes and validates YAML service templates.
func ParseTemplates(data []byte) ([]Template, error) {
	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse service templates: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Services))
	for i, tpl := range file.Services {
		name := strings.TrimSpace(tpl.Name)
		if name == "" {
			return nil, fmt.Errorf("service template %d: name is required", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("service template %d: duplicate name %q", i, name)
		}
		seen[key] = struct{}{}
		if tpl.Status != "" {
			if _, ok := domain.ParseServiceStatus(tpl.Status); !ok {
				return nil, fmt.Errorf("service template %q: unknown status %q", name, tpl.Status)
			}
		}
		file.Services[i].Name = name
	}
	return file.Services, nil
}
