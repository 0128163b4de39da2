package v1beta1

const (
	APIVersion = "v1beta1"
)
