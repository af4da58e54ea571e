package tilestream

// ResourceOption configures a Resource during creation.
//
// Example:
//
//	r, err := m.CreateResource(src, tilestream.WithName("terrain/albedo"))
type ResourceOption func(*resourceOptions)

// resourceOptions holds optional configuration for Resource creation.
type resourceOptions struct {
	name string
}

// WithName sets the name used for the resource in log output.
func WithName(name string) ResourceOption {
	return func(o *resourceOptions) {
		o.name = name
	}
}
