package sandbox

import "fmt"

// ResourceLimits are per-execution ceilings applied to the child process.
// Zero disables an individual limit.
type ResourceLimits struct {
	CPUSeconds   int64 `mapstructure:"cpu_seconds" json:"cpuSeconds"`
	MemoryMB     int64 `mapstructure:"memory_mb" json:"memoryMb"`         // address space
	MaxProcesses int64 `mapstructure:"max_processes" json:"maxProcesses"` // fork bomb protection
	FileSizeMB   int64 `mapstructure:"file_size_mb" json:"fileSizeMb"`
	OpenFiles    int64 `mapstructure:"open_files" json:"openFiles"`
}

// DefaultLimits keeps CPUSeconds above the default wall deadline so a busy
// loop is reported as a timeout rather than dying of SIGXCPU.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		CPUSeconds:   15,
		MemoryMB:     512,
		MaxProcesses: 64,
		FileSizeMB:   10,
		OpenFiles:    64,
	}
}

func (rl ResourceLimits) Validate() error {
	if rl.CPUSeconds < 0 || rl.CPUSeconds > 3600 {
		return fmt.Errorf("%w: cpu_seconds must be 0-3600, got %d", ErrInvalidLimits, rl.CPUSeconds)
	}
	if rl.MemoryMB != 0 && (rl.MemoryMB < 32 || rl.MemoryMB > 16384) {
		return fmt.Errorf("%w: memory_mb must be 0 or 32-16384, got %d", ErrInvalidLimits, rl.MemoryMB)
	}
	if rl.MaxProcesses < 0 || rl.MaxProcesses > 4096 {
		return fmt.Errorf("%w: max_processes must be 0-4096, got %d", ErrInvalidLimits, rl.MaxProcesses)
	}
	if rl.FileSizeMB < 0 || rl.FileSizeMB > 4096 {
		return fmt.Errorf("%w: file_size_mb must be 0-4096, got %d", ErrInvalidLimits, rl.FileSizeMB)
	}
	if rl.OpenFiles != 0 && (rl.OpenFiles < 16 || rl.OpenFiles > 65536) {
		// the interpreter needs a handful of descriptors just to start
		return fmt.Errorf("%w: open_files must be 0 or 16-65536, got %d", ErrInvalidLimits, rl.OpenFiles)
	}
	return nil
}

const mib = 1024 * 1024

func safeUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
