package meta

import (
	"errors"
	"reflect"
)

var ErrUnknownObjectKind = errors.New("unknown object kind")

type TypeMeta struct {
	Kind       string `json:"kind,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
}

type Object interface {
	GetAPIVersion() string
	GetKind() string
}

func (t TypeMeta) GetAPIVersion() string {
	return t.APIVersion
}

func (t TypeMeta) GetKind() string {
	return t.Kind
}

type ObjectList []Object

type ObjectVisitorFunc = interface{} // func(*T)

// Visit calls each visitor for every object in the list whose concrete
// type matches the visitor's argument type.
func (l ObjectList) Visit(visitors ...ObjectVisitorFunc) {
	for _, vf := range visitors {
		t := reflect.TypeOf(vf).In(0)
		fn := reflect.ValueOf(vf)
		for _, o := range l {
			if reflect.TypeOf(o) == t {
				fn.Call([]reflect.Value{reflect.ValueOf(o)})
			}
		}
	}
}
