package engine

// AccessKind distinguishes the three ways a virtual address can be used,
// each gated by a different PTE permission bit.
type AccessKind uint8

const (
	AccessFetch AccessKind = iota
	AccessLoad
	AccessStore
)

// Sv39 layout constants.
const (
	pageSize     = 4096
	pageShift    = 12
	vpnBits      = 9
	sv39Levels   = 3
	satpModeSv39 = 8
)

// PTE flag bits.
const (
	pteV uint64 = 1 << 0
	pteR uint64 = 1 << 1
	pteW uint64 = 1 << 2
	pteX uint64 = 1 << 3
	pteU uint64 = 1 << 4
	pteG uint64 = 1 << 5
	pteA uint64 = 1 << 6
	pteD uint64 = 1 << 7
)

// tlbKey is the insertion key §3 specifies: (virtual page number,
// access-kind, mode).
type tlbKey struct {
	vpn  uint64
	kind AccessKind
	priv uint8
}

// tlbEntry caches the outcome of a page-table walk. It holds the leaf PTE's
// permission bits rather than a precomputed verdict, so a hit re-runs the
// same permission check a miss would — the cache changes only how the
// physical page number was obtained, never the answer. pteAddr is the
// physical address of the leaf PTE itself, needed to write back A/D bits
// after a successful access, whether the entry came from a fresh walk or
// a cache hit.
type tlbEntry struct {
	ppn      uint64
	pteFlags uint64
	pteAddr  uint64
	level    int // 0 = 4K, 1 = 2M superpage, 2 = 1G superpage
}

// MMU performs Sv39 virtual-to-physical translation with a TLB. It is a
// pure hint cache: deleting it entirely changes nothing but speed.
type MMU struct {
	mem *Memory
	tlb map[tlbKey]tlbEntry
}

func NewMMU(mem *Memory) *MMU {
	return &MMU{mem: mem, tlb: make(map[tlbKey]tlbEntry)}
}

// FlushAll drops every TLB entry, as required on any write to satp.
func (m *MMU) FlushAll() {
	m.tlb = make(map[tlbKey]tlbEntry)
}

// FlushVA drops entries for a single virtual page, the scoped form
// sfence.vma may use; a full flush is also a legal implementation of it.
func (m *MMU) FlushVA(vaddr uint64) {
	vpn := vaddr >> pageShift
	for k := range m.tlb {
		if k.vpn == vpn {
			delete(m.tlb, k)
		}
	}
}

func effectivePrivilege(csr *CSRFile, kind AccessKind) uint8 {
	if kind != AccessFetch && csr.Priv == PrivMachine && csr.Mstatus&MstatusMPRV != 0 {
		return csr.MPP()
	}
	return csr.Priv
}

func pageFaultFor(kind AccessKind, pc, vaddr uint64) *Trap {
	switch kind {
	case AccessFetch:
		return instructionPageFault(pc, vaddr)
	case AccessStore:
		return storePageFault(pc, vaddr)
	default:
		return loadPageFault(pc, vaddr)
	}
}

// Translate implements §4.C: virtual address -> physical address, under the
// csr file's satp and the access kind requested. pc is the faulting PC to
// attach to any page fault.
func (m *MMU) Translate(vaddr uint64, csr *CSRFile, kind AccessKind, pc uint64) (uint64, *Trap) {
	effPriv := effectivePrivilege(csr, kind)

	if csr.Satp>>60 != satpModeSv39 || effPriv == PrivMachine {
		return vaddr, nil
	}

	vpn := vaddr >> pageShift
	key := tlbKey{vpn: vpn, kind: kind, priv: effPriv}
	entry, hit := m.tlb[key]
	if !hit {
		var trap *Trap
		entry, trap = m.walk(vaddr, csr, pc, kind)
		if trap != nil {
			return 0, trap
		}
		m.tlb[key] = entry
	}

	if trap := checkPermissions(entry.pteFlags, kind, effPriv, csr); trap != nil {
		trap.PC, trap.Tval = pc, vaddr
		return 0, trap
	}

	// Only once the access is known to succeed do A (and, for a store, D)
	// get set, per §4.C — a denied access must leave the PTE untouched.
	if trap := m.markAccessed(&entry, kind, pc); trap != nil {
		return 0, trap
	}
	m.tlb[key] = entry

	pageBits := pageShift + entry.level*vpnBits
	offsetMask := (uint64(1) << pageBits) - 1
	paddr := (entry.ppn << pageShift &^ offsetMask) | (vaddr & offsetMask)
	return paddr, nil
}

// walk performs the 3-level Sv39 page-table walk and resolves the leaf PTE.
// It does not itself update A/D bits: the "update" policy permitted by
// §4.C's open question only fires once the caller has confirmed the
// access is actually permitted (see markAccessed), never on a walk whose
// result is about to be rejected by a permission check.
func (m *MMU) walk(vaddr uint64, csr *CSRFile, pc uint64, kind AccessKind) (tlbEntry, *Trap) {
	vpn := [sv39Levels]uint64{
		(vaddr >> 12) & 0x1ff,
		(vaddr >> 21) & 0x1ff,
		(vaddr >> 30) & 0x1ff,
	}

	base := (csr.Satp & ((1 << 44) - 1)) << pageShift
	var pteAddr uint64
	var pte uint64
	level := sv39Levels - 1
	for {
		pteAddr = base + vpn[level]*8
		raw, err := m.mem.ReadDouble(pteAddr)
		if err != nil {
			return tlbEntry{}, accessFaultFor(kind, pc, pteAddr)
		}
		pte = raw

		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return tlbEntry{}, pageFaultFor(kind, pc, vaddr)
		}

		isLeaf := pte&(pteR|pteX|pteW) != 0
		if isLeaf {
			break
		}
		if level == 0 {
			return tlbEntry{}, pageFaultFor(kind, pc, vaddr)
		}
		base = (pte >> 10) << pageShift
		level--
	}

	// Misaligned superpage: low bits of the PPN below the leaf's level
	// must be zero.
	ppnField := pte >> 10
	if level > 0 {
		lowMask := uint64(1)<<(level*vpnBits) - 1
		if ppnField&lowMask != 0 {
			return tlbEntry{}, pageFaultFor(kind, pc, vaddr)
		}
	}

	return tlbEntry{ppn: ppnField, pteFlags: pte, pteAddr: pteAddr, level: level}, nil
}

// markAccessed sets A (and, for a store, D) on entry's leaf PTE in both the
// cached entry and physical memory, once Translate has confirmed the
// access is permitted. A no-op if the bits are already set.
func (m *MMU) markAccessed(entry *tlbEntry, kind AccessKind, pc uint64) *Trap {
	newFlags := entry.pteFlags | pteA
	if kind == AccessStore {
		newFlags |= pteD
	}
	if newFlags == entry.pteFlags {
		return nil
	}
	if err := m.mem.WriteDouble(entry.pteAddr, newFlags); err != nil {
		return accessFaultFor(kind, pc, entry.pteAddr)
	}
	entry.pteFlags = newFlags
	return nil
}

func accessFaultFor(kind AccessKind, pc, addr uint64) *Trap {
	if kind == AccessStore {
		return storeAccessFault(pc, addr)
	}
	if kind == AccessFetch {
		return instructionAccessFault(pc, addr)
	}
	return loadAccessFault(pc, addr)
}

// checkPermissions validates the leaf PTE's flags against the requested
// access kind, effective privilege, and the SUM/MXR bits in mstatus.
func checkPermissions(flags uint64, kind AccessKind, priv uint8, csr *CSRFile) *Trap {
	switch kind {
	case AccessFetch:
		if flags&pteX == 0 {
			return instructionPageFault(0, 0)
		}
		if priv == PrivUser && flags&pteU == 0 {
			return instructionPageFault(0, 0)
		}
		if priv == PrivSupervisor && flags&pteU != 0 {
			return instructionPageFault(0, 0)
		}
	case AccessLoad:
		readable := flags&pteR != 0 || (flags&pteX != 0 && csr.Mstatus&MstatusMXR != 0)
		if !readable {
			return loadPageFault(0, 0)
		}
		if trap := checkUserBit(flags, kind, priv, csr); trap != nil {
			return trap
		}
	case AccessStore:
		if flags&pteW == 0 {
			return storePageFault(0, 0)
		}
		if trap := checkUserBit(flags, kind, priv, csr); trap != nil {
			return trap
		}
	}
	return nil
}

func checkUserBit(flags uint64, kind AccessKind, priv uint8, csr *CSRFile) *Trap {
	if priv == PrivUser && flags&pteU == 0 {
		return pageFaultFor(kind, 0, 0)
	}
	if priv == PrivSupervisor && flags&pteU != 0 && csr.Mstatus&MstatusSUM == 0 {
		return pageFaultFor(kind, 0, 0)
	}
	return nil
}
