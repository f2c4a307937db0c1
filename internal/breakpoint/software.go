package breakpoint

// install reads and saves size bytes at site.Addr, then writes the
// architecture trap opcode of that size, per the software-variant
// contract in the breakpoint design.
func (m *Manager) install(site *Site) error {
	saved, err := m.mem.ReadMemory(site.Addr, site.Size)
	if err != nil {
		return err
	}
	site.Saved = saved
	return m.mem.WriteMemory(site.Addr, m.trap.TrapBytes(site.Size))
}

// uninstall restores the saved original bytes at site.Addr.
func (m *Manager) uninstall(site *Site) error {
	if site.Hardware || len(site.Saved) == 0 {
		return nil
	}
	return m.mem.WriteMemory(site.Addr, site.Saved)
}
