package breakpoint

import "github.com/debugstub/ds2agent/internal/agenterr"

// Memory is the read/write surface the manager needs from native control,
// deliberately narrow so the manager has no dependency on process or
// ptrace details.
type Memory interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error
}

// SizeChooser picks the trap encoding size for a software breakpoint at
// addr when the caller passes size 0, by inspecting the instruction
// already there (RISC-V: 2 for RVC, 4 otherwise).
type SizeChooser interface {
	ChooseSize(mem Memory, addr uint64) (int, error)
}

// TrapEncoder returns the little-endian trap opcode bytes for a software
// breakpoint of the given size (RISC-V: c.ebreak or ebreak).
type TrapEncoder interface {
	TrapBytes(size int) []byte
}

// Manager owns the set of installed breakpoint and watchpoint sites for
// one process, keyed by address with a dense id arena (no back-pointers:
// lifetime is simply "alive while RefCount > 0").
type Manager struct {
	mem     Memory
	chooser SizeChooser
	trap    TrapEncoder

	nextID    int
	byAddr    map[uint64]int
	arena     map[int]*Site
	hwSlots   int
	usedSlots map[int]bool
}

// NewManager constructs a manager backed by mem for memory splicing,
// chooser for size auto-detection, and trap for the architecture's trap
// opcode bytes. hwSlots is the number of hardware debug-register slots
// available (0 disables the hardware variant).
func NewManager(mem Memory, chooser SizeChooser, trap TrapEncoder, hwSlots int) *Manager {
	return &Manager{
		mem:       mem,
		chooser:   chooser,
		trap:      trap,
		byAddr:    make(map[uint64]int),
		arena:     make(map[int]*Site),
		hwSlots:   hwSlots,
		usedSlots: make(map[int]bool),
	}
}

// Add installs (or bumps the reference count of) a site at addr. size==0
// asks the chooser to pick a size. Returns InvalidArgument if an existing
// site at addr has incompatible attributes.
func (m *Manager) Add(addr uint64, lifetime Lifetime, size int, mode Mode, hardware bool) (*Site, error) {
	if err := isValid(size, mode, hardware); err != nil {
		return nil, err
	}

	if id, ok := m.byAddr[addr]; ok {
		site := m.arena[id]
		if site.Mode != mode || site.Hardware != hardware {
			return nil, agenterr.New("breakpoint.add", agenterr.InvalidArgument, "existing site has different attributes")
		}
		site.RefCount++
		return site, nil
	}

	if size == 0 {
		chosen, err := m.chooser.ChooseSize(m.mem, addr)
		if err != nil {
			return nil, err
		}
		size = chosen
	}

	site := &Site{
		ID:       m.nextID,
		Addr:     addr,
		Size:     size,
		Mode:     mode,
		Lifetime: lifetime,
		RefCount: 1,
		Hardware: hardware,
	}

	if hardware {
		slot, err := m.allocSlot()
		if err != nil {
			return nil, err
		}
		site.Slot = slot
	} else {
		if err := m.install(site); err != nil {
			return nil, err
		}
	}

	m.nextID++
	m.arena[site.ID] = site
	m.byAddr[addr] = site.ID
	return site, nil
}

// Remove decrements the reference count at addr; at zero the site is
// uninstalled (restoring saved bytes for software sites, freeing the
// debug-register slot for hardware sites) and erased.
func (m *Manager) Remove(addr uint64) error {
	id, ok := m.byAddr[addr]
	if !ok {
		return agenterr.New("breakpoint.remove", agenterr.NotFound, "no site at address")
	}
	site := m.arena[id]
	site.RefCount--
	if site.RefCount > 0 {
		return nil
	}
	return m.erase(site)
}

func (m *Manager) erase(site *Site) error {
	if site.Hardware {
		delete(m.usedSlots, site.Slot)
	} else if err := m.uninstall(site); err != nil {
		return err
	}
	delete(m.byAddr, site.Addr)
	delete(m.arena, site.ID)
	return nil
}

// Hit reports whether an installed Exec site covers pc. If the site is
// TemporaryOneShot, it is removed before Hit returns.
func (m *Manager) Hit(pc uint64) (*Site, bool) {
	id, ok := m.byAddr[pc]
	if !ok {
		return nil, false
	}
	site := m.arena[id]
	if site.Mode != ModeExec {
		return nil, false
	}
	if site.Lifetime == TemporaryOneShot {
		m.erase(site)
	}
	return site, true
}

// Lookup returns the site installed at addr, if any.
func (m *Manager) Lookup(addr uint64) (*Site, bool) {
	id, ok := m.byAddr[addr]
	if !ok {
		return nil, false
	}
	return m.arena[id], true
}

// DetachAll uninstalls every software site, restoring original bytes,
// in preparation for releasing tracing. Hardware slots are simply freed.
func (m *Manager) DetachAll() error {
	for _, site := range m.arena {
		if err := m.erase(site); err != nil {
			return err
		}
	}
	return nil
}

// ReadMemory overlays the saved original bytes of any software site that
// overlaps [addr, addr+len) onto the underlying read, so a debugger never
// observes a trap opcode it didn't install itself.
func (m *Manager) ReadMemory(addr uint64, size int) ([]byte, error) {
	data, err := m.mem.ReadMemory(addr, size)
	if err != nil {
		return nil, err
	}
	for _, site := range m.arena {
		if site.Hardware || len(site.Saved) == 0 {
			continue
		}
		spliceRead(data, addr, site)
	}
	return data, nil
}

// WriteMemory writes data to the underlying memory, but for any byte that
// falls within an installed software site's range, the write instead
// updates the site's saved-bytes shadow: the underlying memory keeps
// holding the trap opcode, and the debugger's write becomes visible only
// on a future splice-read or on uninstall.
func (m *Manager) WriteMemory(addr uint64, data []byte) error {
	pass := make([]byte, len(data))
	copy(pass, data)

	for _, site := range m.arena {
		if site.Hardware || len(site.Saved) == 0 {
			continue
		}
		lo := max64(addr, site.Addr)
		hi := min64(addr+uint64(len(data)), site.Addr+uint64(site.Size))
		for a := lo; a < hi; a++ {
			site.Saved[a-site.Addr] = data[a-addr]
		}
	}

	// Bytes shadowed by a site must not reach the underlying memory, or
	// they would clobber the installed trap opcode; splice the original
	// trap bytes back in for those positions before the real write.
	for _, site := range m.arena {
		if site.Hardware || len(site.Saved) == 0 {
			continue
		}
		trap := m.trap.TrapBytes(site.Size)
		lo := max64(addr, site.Addr)
		hi := min64(addr+uint64(len(data)), site.Addr+uint64(site.Size))
		for a := lo; a < hi; a++ {
			pass[a-addr] = trap[a-site.Addr]
		}
	}
	return m.mem.WriteMemory(addr, pass)
}

func spliceRead(data []byte, addr uint64, site *Site) {
	lo := max64(addr, site.Addr)
	hi := min64(addr+uint64(len(data)), site.Addr+uint64(site.Size))
	if lo >= hi {
		return
	}
	for a := lo; a < hi; a++ {
		data[a-addr] = site.Saved[a-site.Addr]
	}
}

func (m *Manager) allocSlot() (int, error) {
	if m.hwSlots == 0 {
		return 0, agenterr.New("breakpoint.add", agenterr.Unsupported, "hardware breakpoints not supported")
	}
	for i := 0; i < m.hwSlots; i++ {
		if !m.usedSlots[i] {
			m.usedSlots[i] = true
			return i, nil
		}
	}
	return 0, agenterr.New("breakpoint.add", agenterr.NoMemory, "no free hardware debug-register slots")
}

// MaxWatchpoints returns the number of hardware debug-register slots
// available to this process.
func (m *Manager) MaxWatchpoints() int { return m.hwSlots }

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
