package types

// Record is a raw event produced by an EventSource visitation. It is one of
// DataTransfer, KernelExecution or PeriodicSample.
type Record interface {
	Start() Time
	Kind() int
	record()
}

type DataTransfer struct {
	Call   Time   `yaml:"call"`
	Begin  Time   `yaml:"begin"`
	End    Time   `yaml:"end"`
	Device uint32 `yaml:"device"`
	Dir    uint8  `yaml:"dir"`
	Size   uint64 `yaml:"size"`
	Async  bool   `yaml:"async"`
}

func (d DataTransfer) Start() Time { return d.Begin }
func (d DataTransfer) Kind() int   { return EVENT_DATA_TRANSFER }
func (DataTransfer) record()       {}

type KernelExecution struct {
	Call     Time      `yaml:"call"`
	Begin    Time      `yaml:"begin"`
	End      Time      `yaml:"end"`
	Device   uint32    `yaml:"device"`
	Function string    `yaml:"function"`
	Grid     [3]uint32 `yaml:"grid,flow"`
	Block    [3]uint32 `yaml:"block,flow"`
}

func (k KernelExecution) Start() Time { return k.Begin }
func (k KernelExecution) Kind() int   { return EVENT_KERNEL_EXECUTION }
func (KernelExecution) record()       {}

func (k KernelExecution) TotalThreads() uint64 {
	blocks := uint64(k.Grid[0]) * uint64(k.Grid[1]) * uint64(k.Grid[2])
	threads := uint64(k.Block[0]) * uint64(k.Block[1]) * uint64(k.Block[2])
	return blocks * threads
}

// PeriodicSample holds raw counter readings taken at Time, one per counter
// index of the owning EventSource.
type PeriodicSample struct {
	Time   Time     `yaml:"time"`
	Counts []uint64 `yaml:"counts,flow"`
}

func (p PeriodicSample) Start() Time { return p.Time }
func (p PeriodicSample) Kind() int   { return EVENT_PERIODIC_SAMPLE }
func (PeriodicSample) record()       {}
