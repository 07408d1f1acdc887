//go:build !linux

package inject

func newPlatformInjector(opts Options) (Injector, error) {
	return nil, ErrNotAvailable
}
