package v1beta1

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/outpost-labs/bootplane/pkg/config/meta"
)

func DecodeObject(kind string, document []byte) (meta.Object, error) {
	switch kind {
	case "GatewayConfig":
		obj := &GatewayConfig{}
		if err := yaml.UnmarshalStrict(document, obj); err != nil {
			return nil, err
		}
		return obj, nil
	case "AgentConfig":
		obj := &AgentConfig{}
		if err := yaml.UnmarshalStrict(document, obj); err != nil {
			return nil, err
		}
		return obj, nil
	}
	return nil, fmt.Errorf("%w: %s", meta.ErrUnknownObjectKind, kind)
}
