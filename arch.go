package sandtrap

//go:generate go run golang.org/x/tools/cmd/stringer -type=Arch

// An Arch identifies the instruction set the caller was compiled for. It
// selects the syscall number translation the multiplexer applies before
// dispatch.
type Arch int

const (
	// ArchAMD64 uses the canonical numbering directly.
	ArchAMD64 Arch = iota
	// ArchARM uses the 32-bit EABI numbering, including the private
	// cacheflush call.
	ArchARM
)

func (a Arch) valid() bool {
	switch a {
	case ArchAMD64, ArchARM:
		return true
	}
	return false
}

// sysnumARM maps ARM EABI syscall numbers onto the canonical numbering.
// Numbers outside this table have no equivalent the shim implements.
var sysnumARM = map[uint32]uint32{
	224:      SYS_GETTID,
	240:      SYS_FUTEX,
	241:      SYS_SCHED_SETAFFINITY,
	0x0f0002: SYS_CACHEFLUSH,
}

// canonical translates a native syscall number to the canonical
// numbering. ArchAMD64 numbers pass through untranslated.
func (a Arch) canonical(num uint32) (uint32, bool) {
	switch a {
	case ArchARM:
		c, ok := sysnumARM[num]
		return c, ok
	default:
		return num, true
	}
}
