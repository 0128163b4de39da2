package core

import (
	"github.com/outpost-labs/bootplane/pkg/validation"
)

func (r *Reference) Validate() error {
	return validation.ValidateID(r.ID)
}

func (r NodeRole) Validate() error {
	switch r {
	case NodeRoleControlPlane, NodeRoleWorker:
		return nil
	}
	return validation.ErrInvalidValue
}

func (n *NodeRecord) Validate() error {
	if err := validation.ValidateID(n.ID); err != nil {
		return err
	}
	if err := n.Role.Validate(); err != nil {
		return err
	}
	return validation.ValidateLabels(n.Labels)
}
