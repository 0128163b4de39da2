package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/outpost-labs/bootplane/pkg/config/meta"
	"github.com/outpost-labs/bootplane/pkg/config/v1beta1"
)

var (
	ErrConfigNotFound        = errors.New("config file not found")
	ErrUnsupportedApiVersion = errors.New("unsupported api version")
)

// FindConfig searches the default locations for a config file and
// returns the first one that exists.
func FindConfig() (string, error) {
	pathsToSearch := []string{
		".",
		"/etc/bootplane",
	}
	filenamesToSearch := []string{
		"config.yaml",
		"config.yml",
		"bootplane.yaml",
		"bootplane.yml",
	}

	for _, path := range pathsToSearch {
		for _, filename := range filenamesToSearch {
			p, err := filepath.Abs(filepath.Join(path, filename))
			if err != nil {
				continue
			}
			if f, err := os.Open(p); err == nil {
				f.Close()
				return p, nil
			}
		}
	}

	return "", ErrConfigNotFound
}

// LoadObjectsFromFile loads and decodes every document in a multi-doc
// YAML config file.
func LoadObjectsFromFile(path string) (meta.ObjectList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadObjects(data)
}

func LoadObjects(data []byte) (meta.ObjectList, error) {
	documents := strings.Split(string(data), "\n---\n")
	objects := []meta.Object{}
	for i, document := range documents {
		if strings.TrimSpace(document) == "" {
			continue
		}
		typeMeta := meta.TypeMeta{}
		if err := yaml.Unmarshal([]byte(document), &typeMeta); err != nil {
			return nil, fmt.Errorf("malformed config document at index %d: %w", i, err)
		}
		if typeMeta.Kind == "" {
			return nil, fmt.Errorf("config document at index %d has no kind", i)
		}
		object, err := decodeObject(typeMeta, []byte(document))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s at index %d: %w", typeMeta.Kind, i, err)
		}
		objects = append(objects, object)
	}
	return objects, nil
}

func decodeObject(typeMeta meta.TypeMeta, document []byte) (meta.Object, error) {
	switch typeMeta.APIVersion {
	case v1beta1.APIVersion:
		return v1beta1.DecodeObject(typeMeta.Kind, document)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedApiVersion, typeMeta.APIVersion)
}
