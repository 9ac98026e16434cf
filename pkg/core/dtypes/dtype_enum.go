package dtypes

// DType is an enum representing the data type of a Tensor's elements.
//
// The numeric values are aligned with the ones used by GoMLX (and by PJRT underneath), so a DType can be
// exchanged with those without translation. Only the subset that can be moved and reduced by the
// collectives is defined here.
type DType int32

//go:generate go tool enumer -type=DType -output=gen_dtype_enumer.go dtype_enum.go

const (
	// InvalidDType is the zero value, used as a marker of "unset".
	InvalidDType DType = 0

	// Bool is a two-state boolean, stored as a Go bool.
	Bool DType = 1

	// Int8 and the following are signed integral values of fixed width.
	Int8  DType = 2
	Int16 DType = 3
	Int32 DType = 4
	Int64 DType = 5

	// Uint8 and the following are unsigned integral values of fixed width.
	// Uint8 is also used as "byte" for marker tensors (e.g.: barriers).
	Uint8  DType = 6
	Uint16 DType = 7
	Uint32 DType = 8
	Uint64 DType = 9

	// Float16 is IEEE 754 half-precision, stored as github.com/x448/float16.Float16.
	Float16 DType = 10

	// Float32 and Float64 are IEEE 754 single and double precision.
	Float32 DType = 11
	Float64 DType = 12
)

// Aliases.
const (
	// Byte is an alias to Uint8.
	Byte = Uint8

	// Half is an alias to Float16.
	Half = Float16

	// Float is an alias to Float32.
	Float = Float32

	// Double is an alias to Float64.
	Double = Float64

	// Long is an alias to Int64.
	Long = Int64
)

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// The lower-case version of every name is added during initialization.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"Int8":         Int8,
	"Int16":        Int16,
	"Int32":        Int32,
	"Int64":        Int64,
	"Uint8":        Uint8,
	"Uint16":       Uint16,
	"Uint32":       Uint32,
	"Uint64":       Uint64,
	"Float16":      Float16,
	"Float32":      Float32,
	"Float64":      Float64,

	"Byte":   Byte,
	"Half":   Half,
	"Float":  Float,
	"Double": Double,
	"Long":   Long,
	"Int":    Int64,
	"F16":    Float16,
	"F32":    Float32,
	"F64":    Float64,
}
