package distributed

// OpType identifies the kind of operation a Work was issued for.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=Op -transform=snake -output=gen_optype_enumer.go optype.go

const (
	OpUnknown OpType = iota
	OpBroadcast
	OpAllreduce
	OpAllreduceCoalesced
	OpReduce
	OpAllgather
	OpAllgatherBase
	OpAllgatherCoalesced
	OpAllgatherIntoTensorCoalesced
	OpGather
	OpScatter
	OpReduceScatter
	OpReduceScatterBase
	OpReduceScatterTensorCoalesced
	OpAlltoallBase
	OpAlltoall
	OpSend
	OpRecv
	OpRecvAnysource
	OpBarrier
	OpMonitoredBarrier

	// OpCoalesced is the type of the Work returned when a coalescing window closes.
	OpCoalesced
)
