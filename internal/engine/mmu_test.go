package engine

import "testing"

// buildSv39OnePageTable writes a single-entry, level-2 (1GiB superpage)
// leaf PTE into mem that maps every virtual address below 1GiB straight
// onto the physical range starting at mem.Base(), and returns the satp
// value selecting it.
func buildSv39OnePageTable(t *testing.T, mem *Memory, flags uint64) uint64 {
	t.Helper()
	rootPPN := mem.Base() >> pageShift
	leafPPN := mem.Base() >> pageShift
	pte := (leafPPN << 10) | pteV | flags
	if err := mem.WriteDouble(mem.Base(), pte); err != nil {
		t.Fatal(err)
	}
	return (satpModeSv39 << 60) | rootPPN
}

func TestMMUTranslatesThroughSv39Superpage(t *testing.T) {
	mem := NewMemory(1 << 20)
	if err := mem.WriteWord(mem.Base()+0x2000, 0xcafebabe); err != nil {
		t.Fatal(err)
	}

	var csr CSRFile
	csr.Reset()
	csr.Priv = PrivSupervisor
	csr.Satp = buildSv39OnePageTable(t, mem, pteR|pteW|pteX)

	mmu := NewMMU(mem)
	paddr, trap := mmu.Translate(0x2000, &csr, AccessLoad, 0)
	if trap != nil {
		t.Fatalf("unexpected trap: %v", trap)
	}
	if paddr != mem.Base()+0x2000 {
		t.Fatalf("paddr = 0x%x, want 0x%x", paddr, mem.Base()+0x2000)
	}

	v, err := mem.ReadWord(paddr)
	if err != nil || v != 0xcafebabe {
		t.Fatalf("read back 0x%x, err=%v", v, err)
	}
}

func TestMMUSetsAccessedAndDirtyBitsOnStore(t *testing.T) {
	mem := NewMemory(1 << 20)
	var csr CSRFile
	csr.Reset()
	csr.Priv = PrivSupervisor
	csr.Satp = buildSv39OnePageTable(t, mem, pteR|pteW)

	mmu := NewMMU(mem)
	if _, trap := mmu.Translate(0x2000, &csr, AccessStore, 0); trap != nil {
		t.Fatalf("unexpected trap: %v", trap)
	}

	pte, err := mem.ReadDouble(mem.Base())
	if err != nil {
		t.Fatal(err)
	}
	if pte&pteA == 0 {
		t.Fatal("accessed bit not set after translation")
	}
	if pte&pteD == 0 {
		t.Fatal("dirty bit not set after a store translation")
	}
}

func TestMMUDeniesWriteToReadOnlyPage(t *testing.T) {
	mem := NewMemory(1 << 20)
	var csr CSRFile
	csr.Reset()
	csr.Priv = PrivSupervisor
	csr.Satp = buildSv39OnePageTable(t, mem, pteR) // no W

	mmu := NewMMU(mem)
	_, trap := mmu.Translate(0x2000, &csr, AccessStore, 0x100)
	if trap == nil || trap.Cause != CauseStorePageFault {
		t.Fatalf("expected StorePageFault, got %v", trap)
	}

	pte, err := mem.ReadDouble(mem.Base())
	if err != nil {
		t.Fatal(err)
	}
	if pte&(pteA|pteD) != 0 {
		t.Fatalf("pte = 0x%x: A/D must not be set on a denied access", pte)
	}
}

func TestMMURepeatedStoreHitLeavesDirtyBitSet(t *testing.T) {
	mem := NewMemory(1 << 20)
	var csr CSRFile
	csr.Reset()
	csr.Priv = PrivSupervisor
	csr.Satp = buildSv39OnePageTable(t, mem, pteR|pteW)

	mmu := NewMMU(mem)
	// First store: a fresh walk, markAccessed sets A and D.
	if _, trap := mmu.Translate(0x2000, &csr, AccessStore, 0); trap != nil {
		t.Fatal(trap)
	}
	if len(mmu.tlb) != 1 {
		t.Fatalf("expected one cached entry, got %d", len(mmu.tlb))
	}

	// Second store to the same page: a TLB hit. markAccessed must be a
	// no-op (flags already include A|D), not lose or corrupt them.
	if _, trap := mmu.Translate(0x2000, &csr, AccessStore, 0); trap != nil {
		t.Fatal(trap)
	}
	pte, err := mem.ReadDouble(mem.Base())
	if err != nil {
		t.Fatal(err)
	}
	if pte&(pteA|pteD) != pteA|pteD {
		t.Fatalf("pte = 0x%x: A and D must both remain set across a TLB hit", pte)
	}
}

func TestMMUUserPageInaccessibleFromSupervisorWithoutSUM(t *testing.T) {
	mem := NewMemory(1 << 20)
	var csr CSRFile
	csr.Reset()
	csr.Priv = PrivSupervisor
	csr.Satp = buildSv39OnePageTable(t, mem, pteR|pteW|pteU)

	mmu := NewMMU(mem)
	if _, trap := mmu.Translate(0x2000, &csr, AccessLoad, 0); trap == nil {
		t.Fatal("expected a page fault: supervisor access to a U page without SUM")
	}

	csr.Mstatus |= MstatusSUM
	if _, trap := mmu.Translate(0x2000, &csr, AccessLoad, 0); trap != nil {
		t.Fatalf("unexpected trap with SUM set: %v", trap)
	}
}

func TestMMUMachineModeBypassesTranslation(t *testing.T) {
	mem := NewMemory(1 << 20)
	var csr CSRFile
	csr.Reset() // Priv == PrivMachine
	csr.Satp = buildSv39OnePageTable(t, mem, pteR|pteW|pteX)

	mmu := NewMMU(mem)
	paddr, trap := mmu.Translate(0x99999, &csr, AccessLoad, 0)
	if trap != nil {
		t.Fatalf("unexpected trap: %v", trap)
	}
	if paddr != 0x99999 {
		t.Fatalf("paddr = 0x%x, want identity passthrough 0x99999", paddr)
	}
}

func TestMMUFlushAllDropsTLB(t *testing.T) {
	mem := NewMemory(1 << 20)
	var csr CSRFile
	csr.Reset()
	csr.Priv = PrivSupervisor
	csr.Satp = buildSv39OnePageTable(t, mem, pteR|pteW)

	mmu := NewMMU(mem)
	if _, trap := mmu.Translate(0x2000, &csr, AccessLoad, 0); trap != nil {
		t.Fatal(trap)
	}
	if len(mmu.tlb) == 0 {
		t.Fatal("expected a cached TLB entry after a successful translation")
	}
	mmu.FlushAll()
	if len(mmu.tlb) != 0 {
		t.Fatal("expected FlushAll to empty the TLB")
	}
}
