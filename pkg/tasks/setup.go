package tasks

// RegisterAll sets up the complete default task set for a project. The
// individual setup functions guard against tasks that are already present,
// so hosts can call any subset in any order before or after this.
func RegisterAll(reg *Registry, opts Options) error {
	if err := RegisterInit(reg, opts); err != nil {
		return err
	}
	if err := RegisterTest(reg, opts); err != nil {
		return err
	}
	if err := RegisterPack(reg, opts); err != nil {
		return err
	}

	return RegisterWatch(reg, opts)
}
