package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteYAMLReport encodes a stats report to a YAML file
func WriteYAMLReport(path string, report interface{}) error {
	yamlWriter, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create YAML file: %w", err)
	}
	defer yamlWriter.Close()

	encoder := yaml.NewEncoder(yamlWriter)
	encoder.SetIndent(2)

	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	LogInfo(InfoReportExported, path)
	return nil
}
