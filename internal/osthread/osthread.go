// Package osthread applies scheduling attributes to the OS thread the
// calling goroutine is locked to.
package osthread

// Config describes the attributes applied by Setup.
type Config struct {
	// Name is the kernel-visible thread name. Truncated to 15 bytes.
	Name string
	// Priority is a nice value; lower runs sooner. Applied only when
	// HasPriority is true so that 0 remains expressible.
	Priority    int
	HasPriority bool
	// CPU pins the thread to one core when non-negative.
	CPU int
}

// Modified reports whether Setup would change anything about the thread.
func (c Config) Modified() bool {
	return c.Name != "" || c.HasPriority || c.CPU >= 0
}

// Setup applies cfg to the current OS thread and returns its thread id.
// The caller must hold runtime.LockOSThread for the lifetime of the work
// that depends on these attributes.
func Setup(cfg Config) (int, error) {
	tid := Current()

	if cfg.Name != "" {
		if err := SetName(cfg.Name); err != nil {
			return tid, err
		}
	}
	if cfg.HasPriority {
		if err := SetPriority(tid, cfg.Priority); err != nil {
			return tid, err
		}
	}
	if cfg.CPU >= 0 {
		if err := Pin(cfg.CPU); err != nil {
			return tid, err
		}
	}
	return tid, nil
}
