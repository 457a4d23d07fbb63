package txnlog

import "errors"

// errFormatInvalid is wrapped into fatal on-disk conditions: invalid magic
// token, short header, or a sequence-number gap.
var errFormatInvalid = errors.New("txnlog: log format invalid")

// ErrFormatInvalid allows callers to errors.Is-match any format-fatal
// condition raised by this package.
var ErrFormatInvalid = errFormatInvalid

// ErrNoSuchSequence is returned by GetMemoryMap for an unknown sequence
// number.
var ErrNoSuchSequence = errors.New("txnlog: no such sequence number")
